package expense

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CustomIDPrefix namespaces every component id issued by the form.
const CustomIDPrefix = "expense"

// Action is the event a rendered component emits.
type Action string

const (
	ActionSelectCategory Action = "category"
	ActionOpenFields     Action = "open"
	ActionSubmitFields   Action = "fields"
	ActionConfirm        Action = "confirm"
	ActionEdit           Action = "edit"
	ActionCancel         Action = "cancel"
)

func (a Action) valid() bool {
	switch a {
	case ActionSelectCategory, ActionOpenFields, ActionSubmitFields, ActionConfirm, ActionEdit, ActionCancel:
		return true
	}
	return false
}

// CustomID binds a component to one session revision.
type CustomID struct {
	SessionID string
	Revision  int
	Action    Action
}

// String encodes the id as expense:<session>:<revision>:<action>.
func (c CustomID) String() string {
	return fmt.Sprintf("%s:%s:%d:%s", CustomIDPrefix, c.SessionID, c.Revision, c.Action)
}

// IsCustomID reports whether raw belongs to the expense form.
func IsCustomID(raw string) bool {
	return strings.HasPrefix(raw, CustomIDPrefix+":")
}

// ParseCustomID decodes a component id.
func ParseCustomID(raw string) (CustomID, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 || parts[0] != CustomIDPrefix || parts[1] == "" {
		return CustomID{}, fmt.Errorf("%w: %q", ErrMalformedCustomID, raw)
	}
	revision, err := strconv.Atoi(parts[2])
	if err != nil || revision < 0 {
		return CustomID{}, fmt.Errorf("%w: revision %q", ErrMalformedCustomID, parts[2])
	}
	action := Action(parts[3])
	if !action.valid() {
		return CustomID{}, fmt.Errorf("%w: action %q", ErrMalformedCustomID, parts[3])
	}
	return CustomID{SessionID: parts[1], Revision: revision, Action: action}, nil
}

// NewSessionID returns a random hex identifier.
func NewSessionID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf[:])
}
