package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/bet"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/queue"
	"github.com/jose-valero/wager-queue-bot/internal/ui"
)

// Conversations is the part of the chat platform the matchmaker needs.
type Conversations interface {
	CreateConversation(ctx context.Context, serverID, originChannelID, title string, members []string) (string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// BetCreator is the ledger entry point for a filled group.
type BetCreator interface {
	CreateBet(ctx context.Context, nb bet.NewBet) (wager.Bet, error)
}

// Matchmaker hands a full group from the queue to the ledger: it opens the
// bet thread first, then writes the bet. When the write fails the thread is
// removed so the rollback leaves nothing behind.
type Matchmaker struct {
	conv   Conversations
	ledger BetCreator
	log    *zap.Logger
}

var _ queue.Matcher = (*Matchmaker)(nil)

func NewMatchmaker(conv Conversations, ledger BetCreator, log *zap.Logger) *Matchmaker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matchmaker{conv: conv, ledger: ledger, log: log.With(zap.String("component", "matchmaker"))}
}

func threadTitle(p wager.PanelMeta) string {
	return fmt.Sprintf("%s • %s", p.Mode.Title(), ui.Money(p.Stake.String(), p.Currency))
}

func (m *Matchmaker) CreateMatch(ctx context.Context, match queue.Match) (wager.Bet, error) {
	p := match.Panel
	convID, err := m.conv.CreateConversation(ctx, p.ServerID, p.ChannelID, threadTitle(p), match.Group)
	if err != nil {
		return wager.Bet{}, err
	}

	b, err := m.ledger.CreateBet(ctx, bet.NewBet{
		ServerID:       p.ServerID,
		QueueID:        p.QueueID,
		Mode:           p.Mode,
		Teams:          match.Teams,
		Stake:          p.Stake,
		Fee:            p.Fee,
		Currency:       p.Currency,
		ConversationID: convID,
	})
	if err != nil {
		if derr := m.conv.DeleteConversation(context.WithoutCancel(ctx), convID); derr != nil {
			m.log.Warn("orphan thread not deleted", zap.String("thread", convID), zap.Error(derr))
		}
		return wager.Bet{}, err
	}
	return b, nil
}
