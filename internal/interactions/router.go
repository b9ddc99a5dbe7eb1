// Package interactions receives Discord interaction webhooks and routes them to
// the expense form and the manual report trigger.
package interactions

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"strongbot/internal/chat/discord"
	expenseapp "strongbot/internal/expense/application"
	expense "strongbot/internal/expense/domain"
	monitorapp "strongbot/internal/monitor/application"
	"strongbot/internal/observability/metrics"
)

const maxBodyBytes = 1 << 20

// Command names and the report component id.
const (
	CommandExpense    = "expense"
	CommandReport     = "report"
	ReportComponentID = "report:trigger"
)

// ExpenseService is the form session registry.
type ExpenseService interface {
	Start(ctx context.Context, key expense.SessionKey, userName string) (expenseapp.Response, error)
	Handle(ctx context.Context, ev expenseapp.Event) (expenseapp.Response, error)
}

// ReportTrigger runs a manual report.
type ReportTrigger interface {
	Trigger(ctx context.Context) (monitorapp.CycleResult, error)
}

// Followups answers a deferred interaction after the fact.
type Followups interface {
	Followup(ctx context.Context, applicationID, token, content string) error
}

// Router verifies and dispatches interaction webhooks.
type Router struct {
	publicKey     ed25519.PublicKey
	expenses      ExpenseService
	reports       ReportTrigger
	reportChannel string
	reportTimeout time.Duration
	followups     Followups
	formTimeout   time.Duration
	logger        *log.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

// Option configures the router.
type Option func(*Router)

// WithReportTrigger enables /report in channelID.
func WithReportTrigger(trigger ReportTrigger, channelID string) Option {
	return func(r *Router) {
		r.reports = trigger
		r.reportChannel = channelID
	}
}

// WithReportTimeout bounds a manual report run.
func WithReportTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.reportTimeout = timeout
		}
	}
}

// WithFollowups sends the outcome of deferred form actions to the user.
func WithFollowups(followups Followups) Option {
	return func(r *Router) {
		r.followups = followups
	}
}

// WithFormTimeout bounds a deferred form action.
func WithFormTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.formTimeout = timeout
		}
	}
}

// WithBaseContext sets the parent context for background report runs.
func WithBaseContext(ctx context.Context) Option {
	return func(r *Router) {
		if ctx != nil {
			r.baseCtx = ctx
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter constructs a Router. publicKeyHex is the application's public key.
func NewRouter(publicKeyHex string, expenses ExpenseService, opts ...Option) (*Router, error) {
	key, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, errors.New("interactions: invalid public key")
	}
	if expenses == nil {
		return nil, errors.New("interactions: nil expense service")
	}
	r := &Router{
		publicKey:     ed25519.PublicKey(key),
		expenses:      expenses,
		reportTimeout: 2 * time.Minute,
		formTimeout:   30 * time.Second,
		baseCtx:       context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Wait blocks until background report runs and deferred form actions have finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func actor(in *discordgo.Interaction) (id, name string) {
	var user *discordgo.User
	if in.Member != nil && in.Member.User != nil {
		user = in.Member.User
	} else {
		user = in.User
	}
	if user == nil {
		return "", ""
	}
	name = user.GlobalName
	if in.Member != nil && in.Member.Nick != "" {
		name = in.Member.Nick
	}
	if name == "" {
		name = user.Username
	}
	return user.ID, name
}

// ServeHTTP handles POST /interactions.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if !discordgo.VerifyInteraction(req, r.publicKey) {
		metrics.IncInteraction("signature", metrics.ResultError)
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var in discordgo.Interaction
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		r.logf("interaction decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	resp := r.route(req.Context(), &in)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (r *Router) route(ctx context.Context, in *discordgo.Interaction) *discordgo.InteractionResponse {
	userID, userName := actor(in)
	key := expense.SessionKey{ChannelID: in.ChannelID, UserID: userID}

	switch in.Type {
	case discordgo.InteractionPing:
		metrics.IncInteraction("ping", metrics.ResultSuccess)
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}

	case discordgo.InteractionApplicationCommand:
		switch in.ApplicationCommandData().Name {
		case CommandExpense:
			resp, err := r.expenses.Start(ctx, key, userName)
			r.observe("command_expense", err)
			if resp.Modal == nil && resp.Notice == "" && err == nil {
				// Commands cannot be answered with a deferred update.
				return ephemeral("Expense form opened.")
			}
			return r.formResponse(resp, err)
		case CommandReport:
			return r.report(in.ChannelID, userID)
		}
		metrics.IncInteraction("command_unknown", metrics.ResultError)
		return ephemeral("Unknown command.")

	case discordgo.InteractionMessageComponent:
		data := in.MessageComponentData()
		if data.CustomID == ReportComponentID {
			return r.report(in.ChannelID, userID)
		}
		if !expense.IsCustomID(data.CustomID) {
			metrics.IncInteraction("component_unknown", metrics.ResultError)
			return ephemeral("Unknown action.")
		}
		ev := expenseapp.Event{
			Key:      key,
			UserName: userName,
			CustomID: data.CustomID,
			Values:   data.Values,
		}
		if id, err := expense.ParseCustomID(data.CustomID); err == nil && id.Action == expense.ActionConfirm {
			return r.deferForm(in, ev)
		}
		resp, err := r.expenses.Handle(ctx, ev)
		r.observe("component", err)
		return r.formResponse(resp, err)

	case discordgo.InteractionModalSubmit:
		data := in.ModalSubmitData()
		resp, err := r.expenses.Handle(ctx, expenseapp.Event{
			Key:      key,
			UserName: userName,
			CustomID: data.CustomID,
			Fields:   fieldInput(data.Components),
		})
		r.observe("modal", err)
		return r.formResponse(resp, err)
	}
	metrics.IncInteraction("unknown", metrics.ResultError)
	return ephemeral("Unsupported interaction.")
}

// deferForm acknowledges a confirm at once and reports its outcome through a
// follow-up, since recording the entry can outlast the interaction response
// window.
func (r *Router) deferForm(in *discordgo.Interaction, ev expenseapp.Event) *discordgo.InteractionResponse {
	appID, token := in.AppID, in.Token
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), r.formTimeout)
		defer cancel()
		resp, err := r.expenses.Handle(ctx, ev)
		r.observe("component", err)
		notice := resp.Notice
		if notice == "" && err != nil {
			notice = "Something went wrong, try again."
		}
		if notice == "" || r.followups == nil {
			return
		}
		if ferr := r.followups.Followup(ctx, appID, token, notice); ferr != nil {
			r.logf("interaction followup failed: key=%s err=%v", ev.Key, ferr)
		}
	}()
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
}

// report acknowledges immediately and runs the trigger in the background, since
// a full report takes longer than the interaction response window.
func (r *Router) report(channelID, userID string) *discordgo.InteractionResponse {
	if r.reports == nil {
		return ephemeral("Reports are not enabled.")
	}
	if r.reportChannel != "" && channelID != r.reportChannel {
		metrics.IncInteraction("report", "forbidden")
		return ephemeral("Reports can only be requested in the report channel.")
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), r.reportTimeout)
		defer cancel()
		result, err := r.reports.Trigger(ctx)
		if err != nil {
			r.logf("manual report failed: user=%s outcome=%s err=%v", userID, result.Outcome, err)
			return
		}
		r.logf("manual report sent: user=%s epoch=%d", userID, result.Epoch)
	}()
	metrics.IncInteraction("report", metrics.ResultSuccess)
	return ephemeral("Generating report...")
}

func (r *Router) formResponse(resp expenseapp.Response, err error) *discordgo.InteractionResponse {
	if resp.Modal != nil {
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseModal, Data: discord.EncodeModal(*resp.Modal)}
	}
	if resp.Notice != "" {
		return ephemeral(resp.Notice)
	}
	if err != nil {
		return ephemeral("Something went wrong, try again.")
	}
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
}

func (r *Router) observe(kind string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		r.logf("interaction %s: %v", kind, err)
	}
	metrics.IncInteraction(kind, result)
}

func fieldInput(rows []discordgo.MessageComponent) expense.FieldInput {
	values := make(map[string]string)
	var walk func([]discordgo.MessageComponent)
	walk = func(components []discordgo.MessageComponent) {
		for _, c := range components {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				values[v.CustomID] = v.Value
			case discordgo.TextInput:
				values[v.CustomID] = v.Value
			}
		}
	}
	walk(rows)
	return expense.FieldInput{
		Amount:      values[expenseapp.InputAmount],
		Currency:    values[expenseapp.InputCurrency],
		Description: values[expenseapp.InputNotes],
		TxHash:      values[expenseapp.InputTxHash],
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	}
}

func (r *Router) logf(format string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
