package application

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"strongbot/internal/chat"
	expense "strongbot/internal/expense/domain"
)

// Modal input ids.
const (
	InputAmount   = "amount"
	InputCurrency = "currency"
	InputNotes    = "notes"
	InputTxHash   = "tx_hash"
)

const (
	colorPending   = 0x3498db
	colorConfirm   = 0xf1c40f
	colorSubmitted = 0xe67e22
)

// SessionView renders the message for the session's current stage.
func SessionView(s *expense.Session, catalog expense.Catalog) chat.Message {
	msg := chat.Message{ChannelID: s.Key.ChannelID}
	header := fmt.Sprintf("<@%s>", s.Key.UserID)
	notice := ""
	if s.Notice != "" {
		notice = "\n" + s.Notice
	}
	cancel := chat.Component{Kind: chat.ComponentButton, CustomID: s.CustomID(expense.ActionCancel), Label: "Cancel", Style: chat.ButtonDanger}

	switch s.Stage {
	case expense.StageCategorySelect:
		msg.Content = header + " **New expense:** pick a category." + notice
		options := make([]chat.SelectOption, 0, len(catalog.Names()))
		for _, name := range catalog.Names() {
			options = append(options, chat.SelectOption{Label: name, Value: name})
		}
		msg.Components = []chat.Component{
			{Kind: chat.ComponentSelect, CustomID: s.CustomID(expense.ActionSelectCategory), Placeholder: "Category", Options: options},
			cancel,
		}
	case expense.StageFieldEntry:
		msg.Content = fmt.Sprintf("%s Category: **%s**. Enter the amount and details.%s", header, s.Category, notice)
		msg.Components = []chat.Component{
			{Kind: chat.ComponentButton, CustomID: s.CustomID(expense.ActionOpenFields), Label: "Enter details", Style: chat.ButtonPrimary},
			cancel,
		}
	case expense.StageConfirm:
		msg.Content = header + " Check the expense and confirm." + notice
		msg.Embed = summaryEmbed(s)
		msg.Components = []chat.Component{
			{Kind: chat.ComponentButton, CustomID: s.CustomID(expense.ActionConfirm), Label: "Confirm", Style: chat.ButtonSuccess},
			{Kind: chat.ComponentButton, CustomID: s.CustomID(expense.ActionEdit), Label: "Edit", Style: chat.ButtonSecondary},
			cancel,
		}
	}
	return msg
}

func summaryEmbed(s *expense.Session) *chat.Embed {
	embed := &chat.Embed{
		Title: "Confirm expense",
		Color: colorConfirm,
		Fields: []chat.EmbedField{
			{Name: "Category", Value: s.Category, Inline: true},
			{Name: "Amount", Value: s.Amount.String() + " " + s.Currency, Inline: true},
		},
	}
	if s.TxHash != "" {
		embed.Fields = append(embed.Fields, chat.EmbedField{Name: "Transaction", Value: "`" + s.TxHash + "`"})
	}
	if s.Description != "" {
		embed.Fields = append(embed.Fields, chat.EmbedField{Name: "Notes", Value: s.Description})
	}
	return embed
}

// FieldsModal is the detail form, pre-filled with any earlier values.
func FieldsModal(s *expense.Session) chat.Modal {
	amount := ""
	if !s.Amount.IsZero() {
		amount = s.Amount.String()
	}
	return chat.Modal{
		CustomID: s.CustomID(expense.ActionSubmitFields),
		Title:    truncate("Expense: "+s.Category, 45),
		Inputs: []chat.TextInput{
			{CustomID: InputAmount, Label: "Amount", Placeholder: "42.00", Value: amount, Required: true, MaxLength: 32},
			{CustomID: InputCurrency, Label: "Currency", Value: s.Currency, MaxLength: 10},
			{CustomID: InputTxHash, Label: "Transaction hash", Value: s.TxHash, MaxLength: 128},
			{CustomID: InputNotes, Label: "Notes", Value: s.Description, Paragraph: true, MaxLength: 500},
		},
	}
}

// ConfirmationMessage is posted to the outgoings channel after an append.
func ConfirmationMessage(channelID string, entry expense.Entry) chat.Message {
	embed := &chat.Embed{
		Title:     "Expense Logged - Epoch " + entry.EpochLabel(),
		Color:     colorSubmitted,
		Footer:    "StrongBot Expense Tracker",
		Timestamp: entry.RecordedAt,
		Fields: []chat.EmbedField{
			{Name: "Category", Value: entry.Category, Inline: true},
			{Name: "Amount", Value: entry.Amount.String() + " " + entry.Currency, Inline: true},
			{Name: "User", Value: userLabel(entry), Inline: true},
		},
	}
	if entry.TxHash != "" {
		embed.Fields = append(embed.Fields, chat.EmbedField{Name: "Transaction", Value: "`" + entry.ShortTxHash() + "`"})
	}
	if entry.Description != "" {
		embed.Fields = append(embed.Fields, chat.EmbedField{Name: "Notes", Value: entry.Description})
	}
	return chat.Message{ChannelID: channelID, Embed: embed}
}

func userLabel(entry expense.Entry) string {
	if entry.UserName != "" {
		return entry.UserName
	}
	if entry.UserID != "" {
		return "<@" + entry.UserID + ">"
	}
	return "Unknown"
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
