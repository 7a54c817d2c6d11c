package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

func Mention(userID string) string {
	if userID == "" {
		return "—"
	}
	return "<@" + userID + ">"
}

// Money renders an amount; cash is shown as reais like the panels always did.
func Money(amount string, cur wager.Currency) string {
	if cur == wager.CurrencyCash {
		return "R$ " + amount
	}
	return amount + " sonhos"
}

func StatusLabel(s wager.Status) string {
	switch s {
	case wager.StatusMatched:
		return "waiting for mediator"
	case wager.StatusMediationAccepted:
		return "waiting for payments"
	case wager.StatusConfirmed:
		return "in play"
	case wager.StatusResolved:
		return "resolved"
	case wager.StatusCancelled:
		return "cancelled"
	}
	return strings.ToLower(string(s))
}

var nowFunc = time.Now

// humanize elapsed time
func humanSince(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := nowFunc().Sub(t)
	if d < time.Minute {
		return "seconds ago"
	}
	if d < time.Hour {
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	}
	if d < 48*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh ago", h)
		}
		return fmt.Sprintf("%dh %dm ago", h, m)
	}
	return t.Format("2006-01-02")
}

func bulletList(items []string, max int) string {
	if len(items) == 0 {
		return "—"
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	var b strings.Builder
	for _, p := range items {
		fmt.Fprintf(&b, "• %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func quoteBlock(s string) string {
	if s == "" {
		return "> —"
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = "> " + lines[i]
	}
	return strings.Join(lines, "\n")
}
