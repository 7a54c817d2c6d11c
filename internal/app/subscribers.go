// internal/app/subscribers.go
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/ui"
)

// startSubscribers turns core events into Discord renders. Handlers only
// enqueue; the outbox does the REST calls.
func (b *Bot) startSubscribers() []func() {
	cancels := []func(){
		events.Subscribe(b.bus, b.onQueueChanged),
		events.Subscribe(b.bus, b.onBetCreated),
		events.Subscribe(b.bus, b.onMediatorAssigned),
		events.Subscribe(b.bus, b.onPaymentConfirmed),
		events.Subscribe(b.bus, b.onBetClosed),
		events.Subscribe(b.bus, b.onPoolChanged),
	}
	b.log.Info("subscribers registered", zap.Int("count", len(cancels)))
	return cancels
}

// ---------- queues ----------

func (b *Bot) onQueueChanged(ev events.QueueChanged) {
	meta, members := ev.Panel, ev.Members
	b.out.push("panel:"+ev.QueueID, func(ctx context.Context) error {
		id, err := b.platform.UpdatePanel(ctx, meta.ChannelID, meta.MessageID,
			ui.QueuePanelEmbed(meta, members), ui.QueuePanelComponents(meta.QueueID))
		if err != nil {
			return err
		}
		if id != meta.MessageID {
			// recreated panel: the queue id stays, only the message moves
			meta.MessageID = id
			_, err = b.coord.Open(ctx, meta)
		}
		return err
	})
}

// ---------- bets ----------

func mentions(ids []string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, ui.Mention(id))
	}
	return strings.Join(out, " ")
}

func (b *Bot) postBet(name, content string, bet wager.Bet) {
	b.out.push(name+":"+bet.ID, func(ctx context.Context) error {
		_, err := b.platform.SendMessage(ctx, bet.ConversationID, content, ui.BetEmbed(bet), ui.BetComponents(bet))
		return err
	})
}

func (b *Bot) onBetCreated(ev events.BetCreated) {
	content := fmt.Sprintf("🎯 %s your match is ready. Waiting for a mediator to accept.", mentions(ev.Bet.Participants()))
	b.postBet("bet_created", content, ev.Bet)
}

func (b *Bot) onMediatorAssigned(ev events.MediatorAssigned) {
	bet := ev.Bet
	b.out.push("mediator_join:"+bet.ID, func(ctx context.Context) error {
		return b.platform.AddToConversation(ctx, bet.ConversationID, bet.MediatorID)
	})
	how := "accepted"
	if ev.Auto {
		how = "was assigned to"
	}
	content := fmt.Sprintf("🛡️ %s %s this bet. %s send your stake to the key below, then press **Confirm payment**.",
		ui.Mention(bet.MediatorID), how, mentions(bet.Participants()))
	b.postBet("mediator_assigned", content, bet)
}

func (b *Bot) onPaymentConfirmed(ev events.PaymentConfirmed) {
	content := fmt.Sprintf("✅ Team #%d payment confirmed.", ev.Side+1)
	if ev.Bet.Status == wager.StatusConfirmed {
		content = "✅ All payments confirmed. Good game! The mediator declares the winner with `/resolve`."
	}
	b.postBet("payment_confirmed", content, ev.Bet)
}

func (b *Bot) onBetClosed(ev events.BetClosed) {
	bet := ev.Bet
	content := "🚫 This bet was cancelled."
	if bet.Status == wager.StatusResolved {
		content = fmt.Sprintf("🏆 %s wins!", ui.Mention(bet.WinnerID))
	}
	b.postBet("bet_closed", content, bet)

	if bet.Status != wager.StatusResolved {
		return
	}
	b.out.push("results:"+bet.ID, func(ctx context.Context) error {
		ch := b.settings.Get(ctx, bet.ServerID).ResultsChannelID
		if ch == "" {
			return nil
		}
		_, err := b.platform.SendMessage(ctx, ch, "", ui.BetEmbed(bet), nil)
		return err
	})
}

// ---------- mediator central ----------

func (b *Bot) onPoolChanged(ev events.PoolChanged) {
	serverID, entries := ev.ServerID, ev.Entries
	b.out.push("central:"+serverID, func(ctx context.Context) error {
		cfg := b.settings.Get(ctx, serverID)
		if cfg.CentralChannelID == "" {
			return nil
		}
		id, err := b.platform.UpdatePanel(ctx, cfg.CentralChannelID, cfg.CentralMessageID,
			ui.CentralEmbed(entries, b.pool.Capacity()), ui.CentralComponents())
		if err != nil {
			return err
		}
		if id != cfg.CentralMessageID {
			return b.settings.SetCentral(ctx, serverID, cfg.CentralChannelID, id)
		}
		return nil
	})
}
