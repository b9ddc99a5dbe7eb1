package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"strongbot/internal/chat"
)

// maxRowButtons is the Discord limit for buttons in one action row.
const maxRowButtons = 5

// EncodeMessage converts a chat message into a discordgo message body.
func EncodeMessage(msg chat.Message) *discordgo.MessageSend {
	out := &discordgo.MessageSend{
		Content:         msg.Content,
		Components:      encodeComponents(msg.Components),
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if msg.Broadcast {
		if out.Content == "" {
			out.Content = "@everyone"
		} else {
			out.Content = "@everyone " + out.Content
		}
		out.AllowedMentions.Parse = []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone}
	}
	if msg.Embed != nil {
		out.Embeds = []*discordgo.MessageEmbed{encodeEmbed(*msg.Embed)}
	}
	return out
}

// EncodeModal converts a chat modal into interaction response data.
func EncodeModal(m chat.Modal) *discordgo.InteractionResponseData {
	out := &discordgo.InteractionResponseData{CustomID: m.CustomID, Title: m.Title}
	for _, in := range m.Inputs {
		style := discordgo.TextInputShort
		if in.Paragraph {
			style = discordgo.TextInputParagraph
		}
		out.Components = append(out.Components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.TextInput{
				CustomID:    in.CustomID,
				Label:       in.Label,
				Style:       style,
				Placeholder: in.Placeholder,
				Value:       in.Value,
				Required:    in.Required,
				MaxLength:   in.MaxLength,
			}},
		})
	}
	return out
}

func encodeEmbed(e chat.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{Title: e.Title, Description: e.Description, Color: e.Color}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return out
}

// encodeComponents puts each select on its own row and packs buttons
// into rows of at most five.
func encodeComponents(components []chat.Component) []discordgo.MessageComponent {
	rows := []discordgo.MessageComponent{}
	var buttons []discordgo.MessageComponent
	flush := func() {
		if len(buttons) > 0 {
			rows = append(rows, discordgo.ActionsRow{Components: buttons})
			buttons = nil
		}
	}
	for _, c := range components {
		switch c.Kind {
		case chat.ComponentSelect:
			flush()
			menu := discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    c.CustomID,
				Placeholder: c.Placeholder,
				Disabled:    c.Disabled,
			}
			for _, opt := range c.Options {
				menu.Options = append(menu.Options, discordgo.SelectMenuOption{Label: opt.Label, Value: opt.Value, Description: opt.Description})
			}
			rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}})
		default:
			if len(buttons) == maxRowButtons {
				flush()
			}
			buttons = append(buttons, discordgo.Button{
				CustomID: c.CustomID,
				Label:    c.Label,
				Style:    buttonStyle(c.Style),
				Disabled: c.Disabled,
			})
		}
	}
	flush()
	return rows
}

func buttonStyle(style chat.ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case chat.ButtonSecondary:
		return discordgo.SecondaryButton
	case chat.ButtonSuccess:
		return discordgo.SuccessButton
	case chat.ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}
