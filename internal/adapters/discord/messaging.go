package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const ephemeralFlag = discordgo.MessageFlagsEphemeral

// Interactions is the part of *discordgo.Session the responders use.
type Interactions interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Responder answers interactions. A failed answer is logged and returned;
// callers usually drop it.
type Responder struct {
	log *zap.Logger
}

func NewResponder(log *zap.Logger) *Responder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Responder{log: log.With(zap.String("component", "discord"))}
}

func (r *Responder) respond(s Interactions, i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse, what string) error {
	err := s.InteractionRespond(i.Interaction, resp)
	if err != nil {
		r.log.Warn("interaction response failed", zap.String("kind", what), zap.Error(err))
	}
	return err
}

// SendResponse posts a normal (public) message as the interaction response.
func (r *Responder) SendResponse(s Interactions, i *discordgo.InteractionCreate, msg string) error {
	return r.respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg},
	}, "response")
}

// SendEphemeral posts an ephemeral message only visible to the user who interacted.
func (r *Responder) SendEphemeral(s Interactions, i *discordgo.InteractionCreate, msg string) error {
	return r.respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg, Flags: ephemeralFlag},
	}, "ephemeral")
}

// SendEphemeralEmbed responds with an ephemeral embed.
func (r *Responder) SendEphemeralEmbed(s Interactions, i *discordgo.InteractionCreate, emb *discordgo.MessageEmbed) error {
	return r.respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{emb},
			Flags:  ephemeralFlag,
		},
	}, "ephemeral_embed")
}

// DeferEphemeral acknowledges now; the answer follows with FollowupEphemeral.
// Joins that fill a queue create a thread and can take longer than the 3s
// Discord allows for a first response.
func (r *Responder) DeferEphemeral(s Interactions, i *discordgo.InteractionCreate) error {
	return r.respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: ephemeralFlag},
	}, "defer")
}

func (r *Responder) FollowupEphemeral(s Interactions, i *discordgo.InteractionCreate, msg string) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: msg,
		Flags:   ephemeralFlag,
	})
	if err != nil {
		r.log.Warn("followup failed", zap.Error(err))
	}
	return err
}

// OpenTextModal shows a one-field modal; the submission arrives with customID.
func (r *Responder) OpenTextModal(s Interactions, i *discordgo.InteractionCreate, customID, title, label, placeholder, value string) error {
	return r.respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID,
			Title:    title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "contact",
						Label:       label,
						Style:       discordgo.TextInputShort,
						Placeholder: placeholder,
						Value:       value,
						Required:    true,
						MaxLength:   100,
					},
				}},
			},
		},
	}, "modal")
}

// ModalValue returns the first text input of a modal submission.
func ModalValue(i *discordgo.InteractionCreate) string {
	for _, row := range i.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if ti, ok := c.(*discordgo.TextInput); ok {
				return ti.Value
			}
		}
	}
	return ""
}

// UserOf extracts the effective user from an interaction (guild or DM).
func UserOf(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// SafeName returns a defensively safe username string.
func SafeName(u *discordgo.User) string {
	if u == nil {
		return "unknown"
	}
	return u.Username
}
