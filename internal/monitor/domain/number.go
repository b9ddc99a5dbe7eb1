package monitor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseNumber accepts JSON numbers and display strings such as "$1,234.5",
// "12.3K", "4.5M" or "250,000 SOL".
func ParseNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return parseNumberString(v)
	case nil:
		return 0, fmt.Errorf("%w: null value", ErrMalformedResponse)
	default:
		return 0, fmt.Errorf("%w: unsupported value %T", ErrMalformedResponse, raw)
	}
}

func parseNumberString(value string) (float64, error) {
	s := strings.TrimSpace(value)
	s = strings.TrimSuffix(s, " SOL")
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.EqualFold(s, "n/a") {
		return 0, fmt.Errorf("%w: empty number %q", ErrMalformedResponse, value)
	}
	multiplier := 1.0
	switch suffix := strings.ToUpper(s[len(s)-1:]); suffix {
	case "K":
		multiplier = 1e3
	case "M":
		multiplier = 1e6
	case "B":
		multiplier = 1e9
	}
	if multiplier != 1 {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", ErrMalformedResponse, value)
	}
	return parsed * multiplier, nil
}
