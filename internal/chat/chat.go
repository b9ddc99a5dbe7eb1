// Package chat describes the capabilities the bot needs from a chat platform.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks a delivery failure that must not be retried.
var ErrPermanent = errors.New("chat: permanent failure")

// Client posts messages and invalidates interactive components.
type Client interface {
	Send(ctx context.Context, msg Message) (MessageRef, error)
	DisableComponents(ctx context.Context, ref MessageRef) error
}

// Message is an outbound chat message.
type Message struct {
	ChannelID  string
	Content    string
	Embed      *Embed
	Components []Component
	// Broadcast adds a channel-wide mention.
	Broadcast bool
	// Nonce, when set, makes the platform drop a repeated post of the same message.
	Nonce string
}

// MessageRef identifies a posted message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether ref points at nothing.
func (r MessageRef) IsZero() bool { return r.MessageID == "" }

// Embed is a structured card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// EmbedField is one named value in an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// ComponentKind enumerates interactive widget types.
type ComponentKind string

const (
	ComponentButton ComponentKind = "button"
	ComponentSelect ComponentKind = "select"
)

// ButtonStyle controls button emphasis.
type ButtonStyle string

const (
	ButtonPrimary   ButtonStyle = "primary"
	ButtonSecondary ButtonStyle = "secondary"
	ButtonSuccess   ButtonStyle = "success"
	ButtonDanger    ButtonStyle = "danger"
)

// Component is a button or a dropdown bound to a custom id.
type Component struct {
	Kind        ComponentKind
	CustomID    string
	Label       string
	Style       ButtonStyle
	Placeholder string
	Options     []SelectOption
	Disabled    bool
}

// SelectOption is one dropdown entry.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Modal is a pop-up form returned in response to an interaction.
type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// TextInput is a single modal field.
type TextInput struct {
	CustomID    string
	Label       string
	Placeholder string
	Value       string
	Paragraph   bool
	Required    bool
	MaxLength   int
}

// Error carries an HTTP-level delivery failure.
type Error struct {
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat: status %d: %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	if e.Retryable {
		return e.Err
	}
	return errors.Join(ErrPermanent, e.Err)
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
