// internal/ui/components.go
// Buttons for queue panels, bet threads and the mediator central. Custom ids
// are "<action>:<target>" so the router can dispatch on the prefix.

package ui

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

const (
	ActionQueueJoin       = "queue_join"
	ActionQueueLeave      = "queue_leave"
	ActionBetAccept       = "bet_accept"
	ActionBetContact      = "bet_contact" // modal
	ActionBetConfirm      = "bet_confirm"
	ActionBetCancel       = "bet_cancel"
	ActionCentralEnroll   = "central_enroll"
	ActionCentralContact  = "central_contact" // modal
	ActionCentralWithdraw = "central_withdraw"
)

// CustomID joins an action and its target.
func CustomID(action, target string) string {
	if target == "" {
		return action
	}
	return action + ":" + target
}

// ParseCustomID splits "bet_accept:abc" into ("bet_accept", "abc").
func ParseCustomID(id string) (action, target string) {
	action, target, _ = strings.Cut(id, ":")
	return action, target
}

// QueuePanelComponents renders Join / Leave for one queue.
func QueuePanelComponents(queueID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Join",
					Style:    discordgo.PrimaryButton,
					CustomID: CustomID(ActionQueueJoin, queueID),
					Emoji:    &discordgo.ComponentEmoji{Name: "🎮"},
				},
				discordgo.Button{
					Label:    "Leave",
					Style:    discordgo.SecondaryButton,
					CustomID: CustomID(ActionQueueLeave, queueID),
					Emoji:    &discordgo.ComponentEmoji{Name: "👋"},
				},
			},
		},
	}
}

// BetComponents shows what the bet still needs: a mediator while MATCHED,
// payment confirmations while MEDIATION_ACCEPTED. Cancel stays until the
// bet is confirmed.
func BetComponents(b wager.Bet) []discordgo.MessageComponent {
	var row []discordgo.MessageComponent
	switch b.Status {
	case wager.StatusMatched:
		row = append(row, discordgo.Button{
			Label:    "Accept mediation",
			Style:    discordgo.SuccessButton,
			CustomID: CustomID(ActionBetAccept, b.ID),
			Emoji:    &discordgo.ComponentEmoji{Name: "🛡️"},
		})
	case wager.StatusMediationAccepted:
		row = append(row, discordgo.Button{
			Label:    "Confirm payment",
			Style:    discordgo.SuccessButton,
			CustomID: CustomID(ActionBetConfirm, b.ID),
			Emoji:    &discordgo.ComponentEmoji{Name: "💰"},
		})
	default:
		return nil
	}
	row = append(row, discordgo.Button{
		Label:    "Cancel",
		Style:    discordgo.DangerButton,
		CustomID: CustomID(ActionBetCancel, b.ID),
	})
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: row}}
}

// CentralComponents renders the mediator central buttons.
func CentralComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Enter the queue",
					Style:    discordgo.SuccessButton,
					CustomID: ActionCentralEnroll,
					Emoji:    &discordgo.ComponentEmoji{Name: "✅"},
				},
				discordgo.Button{
					Label:    "Leave the queue",
					Style:    discordgo.SecondaryButton,
					CustomID: ActionCentralWithdraw,
				},
			},
		},
	}
}
