// Package discord implements the chat boundary on the Discord REST API.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"strongbot/internal/chat"
)

// Client posts through a discordgo session authenticated as a bot. Requests go
// through the session so its rate limiter and error types apply.
type Client struct {
	session *discordgo.Session
	baseURL string
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the session's HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.session.Client = client
		}
	}
}

// NewClient constructs a client.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("discord: empty token")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	session.Client = &http.Client{Timeout: 10 * time.Second}
	session.UserAgent = "DiscordBot (strongbot, 1.0)"
	c := &Client{
		session: session,
		baseURL: strings.TrimRight(discordgo.EndpointAPI, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type messageCreate struct {
	*discordgo.MessageSend
	Nonce        string `json:"nonce,omitempty"`
	EnforceNonce bool   `json:"enforce_nonce,omitempty"`
}

// Send posts msg to its channel. A message with a nonce is posted with
// enforce_nonce so a retried request returns the original message.
func (c *Client) Send(ctx context.Context, msg chat.Message) (chat.MessageRef, error) {
	if msg.ChannelID == "" {
		return chat.MessageRef{}, fmt.Errorf("%w: empty channel id", chat.ErrPermanent)
	}
	body := messageCreate{MessageSend: EncodeMessage(msg)}
	if msg.Nonce != "" {
		body.Nonce = msg.Nonce
		body.EnforceNonce = true
	}
	raw, err := c.session.Request(http.MethodPost, c.url("channels", msg.ChannelID, "messages"), body, discordgo.WithContext(ctx))
	if err != nil {
		return chat.MessageRef{}, classify(err)
	}
	var created discordgo.Message
	if err := json.Unmarshal(raw, &created); err != nil {
		return chat.MessageRef{}, fmt.Errorf("discord: decode message: %w", err)
	}
	channelID := created.ChannelID
	if channelID == "" {
		channelID = msg.ChannelID
	}
	return chat.MessageRef{ChannelID: channelID, MessageID: created.ID}, nil
}

// DisableComponents strips the interactive components from a posted message.
func (c *Client) DisableComponents(ctx context.Context, ref chat.MessageRef) error {
	if ref.IsZero() || ref.ChannelID == "" {
		return nil
	}
	edit := &discordgo.MessageEdit{Components: &[]discordgo.MessageComponent{}}
	_, err := c.session.Request(http.MethodPatch, c.url("channels", ref.ChannelID, "messages", ref.MessageID), edit, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// Followup posts an ephemeral follow-up to an interaction that was answered
// with a deferred response.
func (c *Client) Followup(ctx context.Context, applicationID, token, content string) error {
	if applicationID == "" || token == "" {
		return fmt.Errorf("%w: missing interaction token", chat.ErrPermanent)
	}
	params := &discordgo.WebhookParams{
		Content:         content,
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	_, err := c.session.Request(http.MethodPost, c.url("webhooks", applicationID, token), params, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) url(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}

// classify maps discordgo errors onto chat.Error. The session already waits
// out 429s, so what reaches here is a server error, a rejection or a
// transport failure.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		status := rest.Response.StatusCode
		return &chat.Error{
			Status:    status,
			Retryable: status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
			Err:       err,
		}
	}
	return &chat.Error{Retryable: true, Err: err}
}
