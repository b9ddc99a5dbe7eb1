package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"strongbot/internal/chat"
	expense "strongbot/internal/expense/domain"
	"strongbot/internal/observability/metrics"
)

// EntryRecorder persists a confirmed entry.
type EntryRecorder interface {
	Record(ctx context.Context, entry expense.Entry) error
}

// EpochReader reports the current chain epoch.
type EpochReader interface {
	CurrentEpoch(ctx context.Context) (int64, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Event is one component click or modal submission.
type Event struct {
	Key      expense.SessionKey
	UserName string
	CustomID string
	Values   []string
	Fields   expense.FieldInput
}

// Response tells the transport how to answer the interaction.
type Response struct {
	// Notice is shown only to the acting user.
	Notice string
	// Modal, when set, must be opened in reply to the interaction.
	Modal *chat.Modal
}

// Service owns the active form sessions, at most one per key.
type Service struct {
	catalog      expense.Catalog
	chat         chat.Client
	recorder     EntryRecorder
	epochs       EpochReader
	clock        Clock
	idle         time.Duration
	epochTimeout time.Duration
	strict       bool
	logger       *log.Logger

	locks *keyedMutex

	mu       sync.Mutex
	sessions map[expense.SessionKey]*expense.Session
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithIdleTimeout sets how long a session may sit without interaction.
func WithIdleTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.idle = timeout
		}
	}
}

// WithStrictStart rejects Start while a session is active instead of resuming it.
func WithStrictStart(strict bool) ServiceOption {
	return func(s *Service) {
		s.strict = strict
	}
}

// WithEpochReader captures the chain epoch on confirm.
func WithEpochReader(reader EpochReader) ServiceOption {
	return func(s *Service) {
		s.epochs = reader
	}
}

// WithEpochTimeout bounds the epoch lookup made on confirm. A lookup that
// runs out records the entry with an unknown epoch.
func WithEpochTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.epochTimeout = timeout
		}
	}
}

// WithServiceClock overrides the default clock.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithServiceLogger assigns a logger.
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a Service.
func NewService(catalog expense.Catalog, client chat.Client, recorder EntryRecorder, opts ...ServiceOption) (*Service, error) {
	if len(catalog.Names()) == 0 {
		return nil, errors.New("expense service: empty catalog")
	}
	if client == nil {
		return nil, errors.New("expense service: nil chat client")
	}
	if recorder == nil {
		return nil, errors.New("expense service: nil recorder")
	}
	s := &Service{
		catalog:      catalog,
		chat:         client,
		recorder:     recorder,
		clock:        systemClock{},
		idle:         10 * time.Minute,
		epochTimeout: time.Second,
		locks:        newKeyedMutex(),
		sessions:     make(map[expense.SessionKey]*expense.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start opens a session for key, or re-renders the active one.
func (s *Service) Start(ctx context.Context, key expense.SessionKey, userName string) (Response, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	now := s.clock.Now()
	if current := s.get(key); current != nil {
		if s.strict {
			metrics.IncExpenseEvent("start", "conflict")
			return Response{Notice: "You already have an expense form open."}, expense.ErrStateConflict
		}
		if err := s.render(ctx, current); err != nil {
			metrics.IncExpenseEvent("start", metrics.ResultError)
			return Response{Notice: "Could not show your expense form, try again."}, err
		}
		current.UpdatedAt = now
		metrics.IncExpenseEvent("resume", metrics.ResultSuccess)
		return Response{Notice: "Resumed your open expense form."}, nil
	}

	session := expense.NewSession(expense.NewSessionID(), key, userName, now)
	s.put(session)
	if err := s.render(ctx, session); err != nil {
		s.logf("expense form render failed: key=%s err=%v", key, err)
		metrics.IncExpenseEvent("start", metrics.ResultError)
		return Response{Notice: "Could not show your expense form, try again."}, err
	}
	s.logf("expense session started: key=%s session=%s", key, session.ID)
	metrics.IncExpenseEvent("start", metrics.ResultSuccess)
	return Response{}, nil
}

// Handle applies one interaction event to the session it was issued for.
// Events for another session or an older revision have no effect.
func (s *Service) Handle(ctx context.Context, ev Event) (Response, error) {
	id, err := expense.ParseCustomID(ev.CustomID)
	if err != nil {
		return Response{Notice: "Unknown form action."}, err
	}
	unlock := s.locks.Lock(ev.Key)
	defer unlock()

	session := s.get(ev.Key)
	if session == nil {
		metrics.IncExpenseEvent(string(id.Action), "stale")
		return Response{Notice: "This expense form is no longer active. Use /expense to start a new one."}, expense.ErrNoSession
	}
	if err := session.Accepts(id); err != nil {
		metrics.IncExpenseEvent(string(id.Action), "stale")
		return Response{Notice: "That form is out of date. Use the latest message."}, err
	}
	if ev.UserName != "" {
		session.UserName = ev.UserName
	}

	resp, err := s.apply(ctx, session, id.Action, ev)
	result := metrics.ResultSuccess
	var verr *expense.ValidationError
	switch {
	case errors.As(err, &verr):
		result = "invalid"
	case err != nil:
		result = metrics.ResultError
	}
	metrics.IncExpenseEvent(string(id.Action), result)
	return resp, err
}

func (s *Service) apply(ctx context.Context, session *expense.Session, action expense.Action, ev Event) (Response, error) {
	now := s.clock.Now()
	switch action {
	case expense.ActionSelectCategory:
		value := ""
		if len(ev.Values) > 0 {
			value = ev.Values[0]
		}
		if err := session.SelectCategory(value, s.catalog, now); err != nil {
			return Response{Notice: session.Notice}, err
		}
		return Response{}, s.render(ctx, session)

	case expense.ActionOpenFields:
		if session.Stage != expense.StageFieldEntry {
			return Response{Notice: "That form is out of date."}, expense.ErrInvalidTransition
		}
		session.UpdatedAt = now
		modal := FieldsModal(session)
		return Response{Modal: &modal}, nil

	case expense.ActionSubmitFields:
		if err := session.SubmitFields(ev.Fields, now); err != nil {
			return Response{Notice: session.Notice}, err
		}
		return Response{}, s.render(ctx, session)

	case expense.ActionEdit:
		if err := session.Edit(now); err != nil {
			return Response{}, err
		}
		return Response{}, s.render(ctx, session)

	case expense.ActionCancel:
		if err := session.Cancel(now); err != nil {
			return Response{}, err
		}
		s.close(ctx, session)
		s.logf("expense session cancelled: key=%s session=%s", session.Key, session.ID)
		return Response{Notice: "Expense form cancelled."}, nil

	case expense.ActionConfirm:
		return s.confirm(ctx, session)
	}
	return Response{}, fmt.Errorf("%w: action %s", expense.ErrInvalidTransition, action)
}

// confirm records the entry while the key lock is held, then replaces the
// submitted session with a fresh one.
func (s *Service) confirm(ctx context.Context, session *expense.Session) (Response, error) {
	epoch := s.currentEpoch(ctx)
	entry, err := session.Entry(epoch, s.clock.Now())
	if err != nil {
		return Response{}, err
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		session.Fail("Could not record the expense, nothing was saved. Press Confirm to retry.", s.clock.Now())
		if rerr := s.render(ctx, session); rerr != nil {
			s.logf("expense form render failed: key=%s err=%v", session.Key, rerr)
		}
		return Response{Notice: "Saving the expense failed. Your form is still open."}, err
	}
	if err := session.MarkSubmitted(epoch, s.clock.Now()); err != nil {
		return Response{}, err
	}
	s.close(ctx, session)
	s.logf("expense session submitted: key=%s session=%s epoch=%d", session.Key, session.ID, epoch)

	next := expense.NewSession(expense.NewSessionID(), session.Key, session.UserName, s.clock.Now())
	s.put(next)
	if err := s.render(ctx, next); err != nil {
		s.logf("expense follow-up render failed: key=%s err=%v", next.Key, err)
	}
	return Response{Notice: fmt.Sprintf("Expense recorded: %s %s (%s).", entry.Amount, entry.Currency, entry.Category)}, nil
}

func (s *Service) currentEpoch(ctx context.Context) int64 {
	if s.epochs == nil {
		return expense.UnknownEpoch
	}
	epochCtx, cancel := context.WithTimeout(ctx, s.epochTimeout)
	defer cancel()
	epoch, err := s.epochs.CurrentEpoch(epochCtx)
	if err != nil {
		s.logf("expense epoch lookup failed: err=%v", err)
		return expense.UnknownEpoch
	}
	return epoch
}

// render posts the current stage and disables the previous message.
func (s *Service) render(ctx context.Context, session *expense.Session) error {
	ref, err := s.chat.Send(ctx, SessionView(session, s.catalog))
	if err != nil {
		return fmt.Errorf("render expense form: %w", err)
	}
	s.disable(ctx, session)
	session.MessageID = ref.MessageID
	return nil
}

func (s *Service) disable(ctx context.Context, session *expense.Session) {
	if session.MessageID == "" {
		return
	}
	ref := chat.MessageRef{ChannelID: session.Key.ChannelID, MessageID: session.MessageID}
	if err := s.chat.DisableComponents(ctx, ref); err != nil {
		s.logf("expense disable components failed: message=%s err=%v", session.MessageID, err)
	}
	session.MessageID = ""
}

// close disables the session's message and frees its slot.
func (s *Service) close(ctx context.Context, session *expense.Session) {
	s.disable(ctx, session)
	s.mu.Lock()
	if current, ok := s.sessions[session.Key]; ok && current.ID == session.ID {
		delete(s.sessions, session.Key)
	}
	count := len(s.sessions)
	s.mu.Unlock()
	metrics.SetActiveSessions(count)
}

// Sweep times out idle sessions and returns how many expired.
func (s *Service) Sweep(ctx context.Context) int {
	s.mu.Lock()
	keys := make([]expense.SessionKey, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	expired := 0
	for _, key := range keys {
		unlock := s.locks.Lock(key)
		session := s.get(key)
		if session != nil && session.Expire(s.clock.Now(), s.idle) {
			s.close(ctx, session)
			s.logf("expense session timed out: key=%s session=%s", key, session.ID)
			metrics.IncExpenseEvent("timeout", metrics.ResultSuccess)
			expired++
		}
		unlock()
	}
	return expired
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(context.WithoutCancel(ctx))
		}
	}
}

// Session returns a copy of the active session for key.
func (s *Service) Session(key expense.SessionKey) (expense.Session, bool) {
	unlock := s.locks.Lock(key)
	defer unlock()
	session := s.get(key)
	if session == nil {
		return expense.Session{}, false
	}
	return *session, true
}

// ActiveCount returns the number of open sessions.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) get(key expense.SessionKey) *expense.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[key]
}

func (s *Service) put(session *expense.Session) {
	s.mu.Lock()
	s.sessions[session.Key] = session
	count := len(s.sessions)
	s.mu.Unlock()
	metrics.SetActiveSessions(count)
}

func (s *Service) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
