package ui

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

func TestParseCustomID(t *testing.T) {
	a, target := ParseCustomID(CustomID(ActionQueueJoin, "2v2-mob_123"))
	assert.Equal(t, ActionQueueJoin, a)
	assert.Equal(t, "2v2-mob_123", target)

	a, target = ParseCustomID(ActionCentralEnroll)
	assert.Equal(t, ActionCentralEnroll, a)
	assert.Empty(t, target)
}

func buttonIDs(t *testing.T, comps []discordgo.MessageComponent) []string {
	t.Helper()
	var ids []string
	for _, c := range comps {
		row, ok := c.(discordgo.ActionsRow)
		require.True(t, ok)
		for _, bc := range row.Components {
			btn, ok := bc.(discordgo.Button)
			require.True(t, ok)
			ids = append(ids, btn.CustomID)
		}
	}
	return ids
}

func TestBetComponents_FollowStatus(t *testing.T) {
	b := wager.Bet{ID: "b1", Status: wager.StatusMatched}
	assert.Equal(t, []string{"bet_accept:b1", "bet_cancel:b1"}, buttonIDs(t, BetComponents(b)))

	b.Status = wager.StatusMediationAccepted
	assert.Equal(t, []string{"bet_confirm:b1", "bet_cancel:b1"}, buttonIDs(t, BetComponents(b)))

	b.Status = wager.StatusConfirmed
	assert.Nil(t, BetComponents(b))
}

func TestQueuePanelEmbed(t *testing.T) {
	meta := wager.PanelMeta{
		QueueID:  "1v1_m1",
		Mode:     wager.MustMode("1v1"),
		Stake:    decimal.NewFromInt(100),
		Fee:      decimal.NewFromInt(10),
		Currency: wager.CurrencySonhos,
	}
	emb := QueuePanelEmbed(meta, []wager.QueueMember{{ParticipantID: "A"}})
	assert.Contains(t, emb.Description, "(1/2)")
	assert.Contains(t, emb.Description, "1) <@A>")
	assert.Contains(t, emb.Description, "100 sonhos")
	assert.Equal(t, "1v1_m1", emb.Footer.Text)

	empty := QueuePanelEmbed(meta, nil)
	assert.Contains(t, empty.Description, "_(empty)_")
}

func TestBetEmbed_ShowsConfirmationsAndWinner(t *testing.T) {
	b := wager.Bet{
		ID:              "b1",
		Mode:            wager.MustMode("1v1"),
		Teams:           [][]string{{"A"}, {"B"}},
		Stake:           decimal.NewFromInt(50),
		Currency:        wager.CurrencyCash,
		Confirmed:       []bool{true, false},
		Status:          wager.StatusResolved,
		MediatorID:      "M",
		MediatorContact: "pix-key",
		WinnerID:        "B",
	}
	emb := BetEmbed(b)
	require.Len(t, emb.Fields, 4)
	assert.Equal(t, "Team #1 ✅", emb.Fields[0].Name)
	assert.Equal(t, "Team #2 ⏳", emb.Fields[1].Name)
	assert.Contains(t, emb.Fields[2].Value, "pix-key")
	assert.Contains(t, emb.Fields[3].Value, "<@B>")
	assert.Contains(t, emb.Description, "R$ 50")
}

func TestHumanSince(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	assert.Equal(t, "unknown", humanSince(time.Time{}))
	assert.Equal(t, "seconds ago", humanSince(now.Add(-10*time.Second)))
	assert.Equal(t, "5 min ago", humanSince(now.Add(-5*time.Minute)))
	assert.Equal(t, "2h ago", humanSince(now.Add(-2*time.Hour)))
	assert.Equal(t, "1h 30m ago", humanSince(now.Add(-90*time.Minute)))
	assert.Equal(t, "2025-12-01", humanSince(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
}
