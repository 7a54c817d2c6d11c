package app

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	disc "github.com/jose-valero/wager-queue-bot/internal/adapters/discord"
	"github.com/jose-valero/wager-queue-bot/internal/bet"
	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/mediator"
	"github.com/jose-valero/wager-queue-bot/internal/queue"
	"github.com/jose-valero/wager-queue-bot/internal/settings"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
	"github.com/jose-valero/wager-queue-bot/pkg/config"
)

type Bot struct {
	sess *discordgo.Session
	cfg  *config.Config
	log  *zap.Logger

	gw       *storage.Gateway
	bus      *events.Bus
	coord    *queue.Coordinator
	ledger   *bet.Ledger
	pool     *mediator.Pool
	settings *settings.Store

	platform *disc.Platform
	reply    *disc.Responder
	policy   *disc.Policy
	clicks   *disc.Debouncer
	ent      Entitlement
	out      *outbox

	ctx     context.Context
	cancels []func()
}

// NewBot wires the core around one gateway. Nothing talks to Discord until
// Start.
func NewBot(s *discordgo.Session, cfg *config.Config, gw *storage.Gateway, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bot{sess: s, cfg: cfg, log: log.With(zap.String("component", "app")), gw: gw}
	b.bus = events.NewBus(log)
	b.platform = disc.NewPlatform(s, log)
	b.reply = disc.NewResponder(log)
	b.settings = settings.NewStore(gw, log)
	b.pool = mediator.NewPool(gw, b.bus, log, mediator.Options{Capacity: cfg.MediatorCapacity})
	b.ledger = bet.NewLedger(gw, b.pool, b.bus, log, bet.Options{HistoryCap: cfg.HistoryCap})
	b.coord = queue.NewCoordinator(gw, NewMatchmaker(b.platform, b.ledger, log), b.bus, log, queue.Options{HardCap: cfg.QueueHardCap})
	b.policy = disc.NewPolicy(b.platform, b.reply, cfg.AdminRoleIDs, func(ctx context.Context, serverID string) string {
		return b.settings.Get(ctx, serverID).MediatorRoleID
	})
	b.clicks = disc.NewDebouncer(disc.DefaultClickTTL)
	b.ent = EntitlementFunc(cfg.Entitled)
	b.out = newOutbox(b.log)
	return b
}

// Start repairs persisted state, then attaches handlers, subscribers and
// sweepers. They all stop when ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx

	// renders from the boot hand-offs go through the outbox like any other
	b.cancels = append(b.cancels, b.startSubscribers()...)
	go b.out.run(ctx)

	rep, err := Boot(ctx, b.gw, b.ledger, b.coord, b.log)
	if err != nil {
		return fmt.Errorf("boot reconcile: %w", err)
	}
	b.log.Info("state restored",
		zap.Int("panels", len(b.coord.Panels(ctx, ""))),
		zap.Int("restored", rep.Queue.Restored), zap.Int("dropped", rep.Queue.Dropped),
		zap.Int("matched", rep.Matched), zap.Int("archived", rep.Bets.Archived))

	b.sess.AddHandler(b.HandleInteraction)
	b.startSweepers(ctx)
	b.refreshPanels(ctx)

	if err := RegisterCommands(b.sess, b.cfg.AppID, b.cfg.GuildID); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

// Stop detaches the bus subscribers; the caller cancels the Start context.
func (b *Bot) Stop() {
	for _, c := range b.cancels {
		c()
	}
	b.cancels = nil
}

// BootReport sums up the repair run once at startup.
type BootReport struct {
	Bets    bet.ReconcileReport
	Queue   queue.ReconcileReport
	Matched int // full groups handed off after the queue repair
}

// Boot loads the snapshot and repairs it: the ledger first, so the queue pass
// sees which participants are really bound. Queues left holding a full group
// are then matched before any interaction is handled. A failed hand-off there
// is logged, not fatal; the queue sweeper retries it.
func Boot(ctx context.Context, gw *storage.Gateway, ledger *bet.Ledger, coord *queue.Coordinator, log *zap.Logger) (BootReport, error) {
	var rep BootReport
	gw.Load(ctx)

	var err error
	if rep.Bets, err = ledger.Reconcile(ctx); err != nil {
		return rep, err
	}
	if rep.Queue, err = coord.Reconcile(ctx); err != nil {
		return rep, err
	}
	n, merr := coord.MatchFull(ctx)
	rep.Matched = n
	if merr != nil {
		log.Warn("restored group still waiting", zap.Error(merr))
	}
	if gw.MirrorDirty() {
		if err := gw.Heal(ctx); err != nil {
			log.Warn("mirror still behind after boot", zap.Error(err))
		}
	}
	return rep, nil
}

// refreshPanels re-renders every queue panel and central once, so panels
// reflect what survived the restart.
func (b *Bot) refreshPanels(ctx context.Context) {
	for _, p := range b.coord.Panels(ctx, "") {
		v, err := b.coord.Snapshot(ctx, p.QueueID)
		if err != nil {
			continue
		}
		b.onQueueChanged(events.QueueChanged{QueueID: p.QueueID, Panel: v.Panel, Members: v.Members})
	}
	for _, id := range b.settings.Servers(ctx) {
		b.onPoolChanged(events.PoolChanged{ServerID: id, Entries: b.pool.List(ctx, id)})
	}
}
