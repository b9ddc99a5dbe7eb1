package expense

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Stage is a form session state.
type Stage string

const (
	StageCategorySelect Stage = "category_select"
	StageFieldEntry     Stage = "field_entry"
	StageConfirm        Stage = "confirm"
	StageSubmitted      Stage = "submitted"
	StageCancelled      Stage = "cancelled"
	StageTimedOut       Stage = "timed_out"
)

// Terminal reports whether no further events apply.
func (s Stage) Terminal() bool {
	switch s {
	case StageSubmitted, StageCancelled, StageTimedOut:
		return true
	}
	return false
}

// DefaultCurrency is used when the form leaves currency blank.
const DefaultCurrency = "SOL"

const (
	maxDescriptionLen = 500
	maxTxHashLen      = 128
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)
	txHashPattern   = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z0-9xX]+$`)
)

// SessionKey scopes a session to one user in one channel.
type SessionKey struct {
	ChannelID string
	UserID    string
}

func (k SessionKey) String() string { return k.ChannelID + "/" + k.UserID }

// FieldInput is the raw modal submission.
type FieldInput struct {
	Amount      string
	Currency    string
	Description string
	TxHash      string
}

// Session is one in-flight expense form. It is not safe for concurrent use;
// callers serialize access per key.
type Session struct {
	ID          string
	Key         SessionKey
	UserName    string
	Stage       Stage
	Category    string
	Amount      decimal.Decimal
	Currency    string
	Description string
	TxHash      string
	Epoch       int64
	MessageID   string
	Revision    int
	Notice      string
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// NewSession opens a session in category selection.
func NewSession(id string, key SessionKey, userName string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Key:       key,
		UserName:  userName,
		Stage:     StageCategorySelect,
		Currency:  DefaultCurrency,
		Epoch:     UnknownEpoch,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// CustomID returns the component id for action at the current revision.
func (s *Session) CustomID(action Action) string {
	return CustomID{SessionID: s.ID, Revision: s.Revision, Action: action}.String()
}

// Accepts checks that id was issued for the current revision of this session.
func (s *Session) Accepts(id CustomID) error {
	if id.SessionID != s.ID || id.Revision != s.Revision || s.Stage.Terminal() {
		return fmt.Errorf("%w: session=%s revision=%d current=%d", ErrStaleComponent, id.SessionID, id.Revision, s.Revision)
	}
	return nil
}

// SelectCategory validates the category and moves to field entry.
func (s *Session) SelectCategory(value string, catalog Catalog, now time.Time) error {
	if s.Stage != StageCategorySelect {
		return s.transitionError("select category")
	}
	category, err := catalog.Match(value)
	if err != nil {
		s.Notice = noticeFor(err)
		return err
	}
	s.Category = category
	s.advance(StageFieldEntry, now)
	return nil
}

// SubmitFields validates the modal values and moves to confirmation. On a
// validation error the stage is unchanged.
func (s *Session) SubmitFields(in FieldInput, now time.Time) error {
	if s.Stage != StageFieldEntry {
		return s.transitionError("submit fields")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return s.reject(invalid("currency", "use a ticker such as SOL or USD"))
	}
	amount, err := ParseAmount(in.Amount, currency)
	if err != nil {
		return s.reject(err)
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return s.reject(invalid("notes", fmt.Sprintf("at most %d characters", maxDescriptionLen)))
	}
	txHash := strings.TrimSpace(in.TxHash)
	if txHash != "" && (len(txHash) > maxTxHashLen || !txHashPattern.MatchString(txHash)) {
		return s.reject(invalid("transaction hash", "unexpected characters"))
	}
	s.Amount = amount
	s.Currency = currency
	s.Description = description
	s.TxHash = txHash
	s.advance(StageConfirm, now)
	return nil
}

// Edit returns from confirmation to field entry keeping the entered values.
func (s *Session) Edit(now time.Time) error {
	if s.Stage != StageConfirm {
		return s.transitionError("edit")
	}
	s.advance(StageFieldEntry, now)
	return nil
}

// Cancel ends the session.
func (s *Session) Cancel(now time.Time) error {
	if s.Stage.Terminal() {
		return s.transitionError("cancel")
	}
	s.advance(StageCancelled, now)
	return nil
}

// Expire moves an idle non-terminal session to timed out.
func (s *Session) Expire(now time.Time, idle time.Duration) bool {
	if s.Stage.Terminal() || idle <= 0 || now.Sub(s.UpdatedAt) < idle {
		return false
	}
	s.advance(StageTimedOut, now)
	return true
}

// Entry builds the ledger row for a confirmed session.
func (s *Session) Entry(epoch int64, now time.Time) (Entry, error) {
	if s.Stage != StageConfirm {
		return Entry{}, s.transitionError("confirm")
	}
	return Entry{
		SessionID:   s.ID,
		Category:    s.Category,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Description: s.Description,
		TxHash:      s.TxHash,
		UserID:      s.Key.UserID,
		UserName:    s.UserName,
		ChannelID:   s.Key.ChannelID,
		Epoch:       epoch,
		RecordedAt:  now.UTC(),
	}, nil
}

// MarkSubmitted records a successful ledger append.
func (s *Session) MarkSubmitted(epoch int64, now time.Time) error {
	if s.Stage != StageConfirm {
		return s.transitionError("mark submitted")
	}
	s.Epoch = epoch
	s.advance(StageSubmitted, now)
	return nil
}

// Fail keeps the session in confirmation with a notice for the user.
func (s *Session) Fail(notice string, now time.Time) {
	s.Notice = notice
	s.Revision++
	s.UpdatedAt = now
}

func (s *Session) advance(stage Stage, now time.Time) {
	s.Stage = stage
	s.Notice = ""
	s.Revision++
	s.UpdatedAt = now
}

func (s *Session) reject(err error) error {
	s.Notice = noticeFor(err)
	return err
}

func (s *Session) transitionError(event string) error {
	return fmt.Errorf("%w: %s in stage %s", ErrInvalidTransition, event, s.Stage)
}

func noticeFor(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.UserMessage()
	}
	return err.Error()
}

// ParseAmount reads a positive decimal. SOL allows nine decimal places, other
// currencies two.
func ParseAmount(raw, currency string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	raw = strings.TrimPrefix(raw, "$")
	if raw == "" {
		return decimal.Decimal{}, invalid("amount", "an amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, invalid("amount", fmt.Sprintf("%q is not a number", raw))
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, invalid("amount", "must be greater than zero")
	}
	places := int32(2)
	if strings.EqualFold(currency, DefaultCurrency) {
		places = 9
	}
	if !amount.Equal(amount.Truncate(places)) {
		return decimal.Decimal{}, invalid("amount", fmt.Sprintf("at most %d decimal places for %s", places, currency))
	}
	return amount, nil
}
