package expense

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	catalog, err := NewCatalog(DefaultCategories)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return catalog
}

func TestSessionHappyPath(t *testing.T) {
	s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "alice", t0)
	if s.Stage != StageCategorySelect || s.Revision != 0 {
		t.Fatalf("unexpected initial state %+v", s)
	}
	if err := s.SelectCategory("travel", testCatalog(t), t0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s.Category != "Travel" || s.Stage != StageFieldEntry {
		t.Fatalf("expected Travel in field entry, got %q %s", s.Category, s.Stage)
	}
	if err := s.SubmitFields(FieldInput{Amount: "42.00", Currency: "usd", Description: "train"}, t0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.Stage != StageConfirm || s.Currency != "USD" || s.Amount.String() != "42" {
		t.Fatalf("unexpected confirm state %+v", s)
	}
	entry, err := s.Entry(612, t0)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.SessionID != "s1" || entry.Epoch != 612 || entry.UserID != "u" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if err := s.MarkSubmitted(612, t0); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if !s.Stage.Terminal() || s.Revision != 3 {
		t.Fatalf("expected terminal at revision 3, got %s rev=%d", s.Stage, s.Revision)
	}
}

func TestSelectUnknownCategorySuggests(t *testing.T) {
	s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "", t0)
	err := s.SelectCategory("Travle", testCatalog(t), t0)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Suggestion != "Travel" {
		t.Fatalf("expected Travel suggestion, got %q", verr.Suggestion)
	}
	if s.Stage != StageCategorySelect || s.Revision != 0 {
		t.Fatalf("invalid input must not move the session")
	}
}

func TestSubmitFieldsValidation(t *testing.T) {
	cases := []FieldInput{
		{Amount: ""},
		{Amount: "abc"},
		{Amount: "-5"},
		{Amount: "0"},
		{Amount: "1.234", Currency: "USD"},
		{Amount: "1.0000000001", Currency: "SOL"},
		{Amount: "1", Currency: "US DOLLARS"},
		{Amount: "1", TxHash: "not a hash!"},
	}
	for _, in := range cases {
		s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "", t0)
		_ = s.SelectCategory("Other", testCatalog(t), t0)
		rev := s.Revision
		err := s.SubmitFields(in, t0)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("input %+v: expected validation error, got %v", in, err)
		}
		if s.Stage != StageFieldEntry || s.Revision != rev {
			t.Fatalf("input %+v: stage must be unchanged", in)
		}
		if s.Notice == "" {
			t.Fatalf("input %+v: expected a notice", in)
		}
	}
}

func TestSolAllowsNineDecimals(t *testing.T) {
	amount, err := ParseAmount("0.000000001", "SOL")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if amount.String() != "0.000000001" {
		t.Fatalf("unexpected amount %s", amount)
	}
}

func TestEditReturnsToFieldEntry(t *testing.T) {
	s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "", t0)
	_ = s.SelectCategory("Other", testCatalog(t), t0)
	_ = s.SubmitFields(FieldInput{Amount: "3"}, t0)
	if err := s.Edit(t0); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if s.Stage != StageFieldEntry || s.Amount.String() != "3" {
		t.Fatalf("expected field entry keeping amount, got %s %s", s.Stage, s.Amount)
	}
	if err := s.Edit(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestAcceptsRejectsStaleIDs(t *testing.T) {
	s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "", t0)
	first, err := ParseCustomID(s.CustomID(ActionSelectCategory))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := s.Accepts(first); err != nil {
		t.Fatalf("current id rejected: %v", err)
	}
	_ = s.SelectCategory("Other", testCatalog(t), t0)
	if err := s.Accepts(first); !errors.Is(err, ErrStaleComponent) {
		t.Fatalf("expected stale component, got %v", err)
	}
	other := CustomID{SessionID: "s2", Revision: s.Revision, Action: ActionCancel}
	if err := s.Accepts(other); !errors.Is(err, ErrStaleComponent) {
		t.Fatalf("expected stale for other session, got %v", err)
	}
}

func TestExpire(t *testing.T) {
	s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "", t0)
	if s.Expire(t0.Add(5*time.Minute), 10*time.Minute) {
		t.Fatalf("expired too early")
	}
	if !s.Expire(t0.Add(10*time.Minute), 10*time.Minute) {
		t.Fatalf("expected expiry")
	}
	if s.Stage != StageTimedOut {
		t.Fatalf("expected timed out, got %s", s.Stage)
	}
	if err := s.Cancel(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal session must not cancel, got %v", err)
	}
}

func TestParseCustomID(t *testing.T) {
	id := CustomID{SessionID: "abc", Revision: 4, Action: ActionConfirm}
	parsed, err := ParseCustomID(id.String())
	if err != nil || parsed != id {
		t.Fatalf("round trip failed: %+v %v", parsed, err)
	}
	for _, raw := range []string{"", "expense", "expense:abc:x:confirm", "expense:abc:1:explode", "other:abc:1:confirm"} {
		if _, err := ParseCustomID(raw); !errors.Is(err, ErrMalformedCustomID) {
			t.Fatalf("ParseCustomID(%q): expected malformed, got %v", raw, err)
		}
	}
}

func TestShortTxHash(t *testing.T) {
	e := Entry{TxHash: "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb"}
	if got := e.ShortTxHash(); got != "5VERv8NM...jCJjBRnb" {
		t.Fatalf("unexpected short hash %q", got)
	}
	if got := (Entry{TxHash: "abc"}).ShortTxHash(); got != "abc" {
		t.Fatalf("short hashes are kept, got %q", got)
	}
}

func TestDescriptionLimitCountsCharacters(t *testing.T) {
	s := NewSession("s1", SessionKey{ChannelID: "c", UserID: "u"}, "alice", t0)
	if err := s.SelectCategory("Travel", testCatalog(t), t0); err != nil {
		t.Fatalf("select: %v", err)
	}
	notes := strings.Repeat("é", maxDescriptionLen)
	if err := s.SubmitFields(FieldInput{Amount: "1", Description: notes}, t0); err != nil {
		t.Fatalf("expected %d two-byte characters to fit, got %v", maxDescriptionLen, err)
	}
	if s.Description != notes {
		t.Fatalf("description altered")
	}

	long := NewSession("s2", SessionKey{ChannelID: "c", UserID: "u"}, "alice", t0)
	_ = long.SelectCategory("Travel", testCatalog(t), t0)
	err := long.SubmitFields(FieldInput{Amount: "1", Description: notes + "é"}, t0)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "notes" {
		t.Fatalf("expected notes validation error, got %v", err)
	}
}
