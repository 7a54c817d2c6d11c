package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

const (
	colorOpen      = 0x57F287
	colorWaiting   = 0xFEE75C
	colorActive    = 0x5865F2
	colorResolved  = 0x2ECC71
	colorCancelled = 0x808080
)

func queueDescription(meta wager.PanelMeta, members []wager.QueueMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Stake:** %s\n**Mediator fee:** %s\n\n", Money(meta.Stake.String(), meta.Currency), Money(meta.Fee.String(), meta.Currency))
	fmt.Fprintf(&b, "**Queue** (%d/%d)\n", len(members), meta.Mode.Capacity())
	if len(members) == 0 {
		b.WriteString("_(empty)_")
		return b.String()
	}
	for i, m := range members {
		fmt.Fprintf(&b, "%d) %s\n", i+1, Mention(m.ParticipantID))
	}
	return strings.TrimRight(b.String(), "\n")
}

// QueuePanelEmbed is the long-lived panel message of a queue.
func QueuePanelEmbed(meta wager.PanelMeta, members []wager.QueueMember) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎲 Wager %s", meta.Mode.Title()),
		Description: queueDescription(meta, members),
		Color:       colorOpen,
		Footer:      &discordgo.MessageEmbedFooter{Text: meta.QueueID},
	}
}

func statusColor(s wager.Status) int {
	switch s {
	case wager.StatusMatched:
		return colorWaiting
	case wager.StatusResolved:
		return colorResolved
	case wager.StatusCancelled:
		return colorCancelled
	}
	return colorActive
}

func teamField(b wager.Bet, side int) *discordgo.MessageEmbedField {
	names := make([]string, 0, len(b.Teams[side]))
	for _, p := range b.Teams[side] {
		names = append(names, Mention(p))
	}
	paid := "⏳"
	if side < len(b.Confirmed) && b.Confirmed[side] {
		paid = "✅"
	}
	return &discordgo.MessageEmbedField{
		Name:   fmt.Sprintf("Team #%d %s", side+1, paid),
		Value:  quoteBlock(bulletList(names, 4)),
		Inline: true,
	}
}

// BetEmbed is posted in the bet thread and re-posted on every transition.
func BetEmbed(b wager.Bet) *discordgo.MessageEmbed {
	emb := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("⚔️ %s • %s", b.Mode.Title(), StatusLabel(b.Status)),
		Description: fmt.Sprintf("**Stake:** %s\n**Mediator fee:** %s",
			Money(b.Stake.String(), b.Currency), Money(b.Fee.String(), b.Currency)),
		Color:  statusColor(b.Status),
		Footer: &discordgo.MessageEmbedFooter{Text: "bet " + b.ID},
	}
	for side := range b.Teams {
		emb.Fields = append(emb.Fields, teamField(b, side))
	}
	med := "_waiting for a mediator_"
	if b.HasMediator() {
		med = Mention(b.MediatorID)
		if b.MediatorContact != "" {
			med += "\nPay to: `" + b.MediatorContact + "`"
		}
	}
	emb.Fields = append(emb.Fields, &discordgo.MessageEmbedField{Name: "Mediator", Value: med})
	if b.WinnerID != "" {
		emb.Fields = append(emb.Fields, &discordgo.MessageEmbedField{Name: "Winner", Value: "🏆 " + Mention(b.WinnerID)})
	}
	return emb
}

// HistoryEmbed lists closed bets, most recent first.
func HistoryEmbed(title string, bets []wager.Bet) *discordgo.MessageEmbed {
	emb := &discordgo.MessageEmbed{Title: title, Color: colorActive}
	if len(bets) == 0 {
		emb.Description = "_Nothing yet_"
		return emb
	}
	var b strings.Builder
	for _, bet := range bets {
		when := bet.UpdatedAt
		if bet.FinishedAt != nil {
			when = *bet.FinishedAt
		}
		fmt.Fprintf(&b, "• **%s** %s • %s • %s", bet.Mode.Title(), Money(bet.Stake.String(), bet.Currency), StatusLabel(bet.Status), humanSince(when))
		if bet.WinnerID != "" {
			fmt.Fprintf(&b, " • 🏆 %s", Mention(bet.WinnerID))
		}
		b.WriteString("\n")
	}
	emb.Description = strings.TrimRight(b.String(), "\n")
	return emb
}

// CentralEmbed shows the mediator pool in assignment order.
func CentralEmbed(entries []wager.MediatorEntry, capacity int) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "Available mediators (%d/%d)\n", len(entries), capacity)
	if len(entries) == 0 {
		b.WriteString("_(empty)_")
	}
	for i, e := range entries {
		fmt.Fprintf(&b, "%d) %s • since %s\n", i+1, Mention(e.MediatorID), humanSince(e.EnqueuedAt))
	}
	return &discordgo.MessageEmbed{
		Title:       "🛡️ Mediator central",
		Description: strings.TrimRight(b.String(), "\n"),
		Color:       colorOpen,
		Footer:      &discordgo.MessageEmbedFooter{Text: "The oldest mediator takes the next bet"},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

// HelpSection is one audience of the help embed; each line is already
// formatted as "`/cmd` - what it does".
type HelpSection struct {
	Name  string
	Lines []string
}

// HelpEmbed lists the commands per audience, then how a bet goes.
func HelpEmbed(sections []HelpSection) *discordgo.MessageEmbed {
	emb := &discordgo.MessageEmbed{
		Title:       "📖 Commands",
		Description: "Wager queues with a mediator holding the stakes",
		Color:       colorActive,
	}
	for _, s := range sections {
		if len(s.Lines) == 0 {
			continue
		}
		emb.Fields = append(emb.Fields, &discordgo.MessageEmbedField{Name: s.Name, Value: strings.Join(s.Lines, "\n")})
	}
	emb.Fields = append(emb.Fields, &discordgo.MessageEmbedField{
		Name: "How it works",
		Value: strings.Join([]string{
			"1. An admin sets the mediator role with `/setup` and publishes panels with `/panel`",
			"2. Press **Join** on a panel; a full group gets a private thread",
			"3. A mediator accepts (or the oldest one in the central is assigned)",
			"4. Send your stake to the mediator's key and press **Confirm payment**",
			"5. Play; the mediator declares the winner with `/resolve`",
		}, "\n"),
	})
	return emb
}
