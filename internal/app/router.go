// internal/app/router.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	d "github.com/jose-valero/wager-queue-bot/internal/adapters/discord"
	"github.com/jose-valero/wager-queue-bot/internal/bet"
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/ui"
)

const interactionTimeout = 20 * time.Second

var (
	errNotInThread   = fault.New(fault.KindNotFound, "use this command inside a bet thread")
	errNotEntitled   = fault.New(fault.KindValidation, "this server is not enabled for wagers")
	errNotPlayer     = fault.New(fault.KindValidation, "you are not playing in this bet")
	errUnknownAction = fault.New(fault.KindValidation, "unknown action")
)

// userMessage is what the user reads for err: the reason for a rejection,
// a generic apology for anything else.
func userMessage(err error) string {
	var fe *fault.Error
	switch fault.KindOf(err) {
	case fault.KindValidation, fault.KindConflict, fault.KindNotFound:
		if errors.As(err, &fe) {
			return "⚠️ " + fe.Error()
		}
		return "⚠️ " + err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "⏳ The bot is busy, try again in a moment."
	}
	return "⚠️ Something went wrong on our side. Try again, or contact staff if it keeps happening."
}

func (b *Bot) fail(s *discordgo.Session, i *discordgo.InteractionCreate, what string, err error, deferred bool) {
	if !fault.Is(err, fault.KindValidation) && !fault.Is(err, fault.KindConflict) && !fault.Is(err, fault.KindNotFound) {
		b.log.Error("interaction failed", zap.String("action", what), zap.String("guild", i.GuildID), zap.Error(err))
	}
	if deferred {
		_ = b.reply.FollowupEphemeral(s, i, userMessage(err))
		return
	}
	_ = b.reply.SendEphemeral(s, i, userMessage(err))
}

// HandleInteraction dispatches slash commands, buttons and modal submits.
func (b *Bot) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	parent := b.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, interactionTimeout)
	defer cancel()

	if d.UserOf(i) == nil {
		_ = b.reply.SendEphemeral(s, i, "⚠️ Could not identify you.")
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleSlash(ctx, s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(ctx, s, i)
	}
}

// ------------------- Slash -------------------

func options(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	for _, o := range i.ApplicationCommandData().Options {
		out[o.Name] = o
	}
	return out
}

func (b *Bot) handleSlash(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	u := d.UserOf(i)
	b.log.Debug("slash", zap.String("command", name), zap.String("user", u.ID), zap.String("channel", i.ChannelID))

	switch name {
	case cmdPanel:
		b.slashPanel(ctx, s, i)
	case cmdConfirmPayment:
		bt, err := b.ledger.ByConversation(ctx, i.ChannelID)
		if err != nil {
			b.fail(s, i, name, threadErr(err), false)
			return
		}
		b.confirmPayment(ctx, s, i, bt, u.ID)
	case cmdResolve:
		winner := options(i)["winner"].UserValue(nil)
		bt, err := b.ledger.ByConversation(ctx, i.ChannelID)
		if err != nil {
			b.fail(s, i, name, threadErr(err), false)
			return
		}
		if !b.requireMediatorOf(ctx, s, i, bt) {
			return
		}
		if _, err := b.ledger.Resolve(ctx, bt.ID, winner.ID); err != nil {
			b.fail(s, i, name, err, false)
			return
		}
		_ = b.reply.SendEphemeral(s, i, "🏆 Winner recorded.")
	case cmdCancelBet:
		bt, err := b.ledger.ByConversation(ctx, i.ChannelID)
		if err != nil {
			b.fail(s, i, name, threadErr(err), false)
			return
		}
		b.cancelBet(ctx, s, i, bt)
	case cmdHistory:
		limit := 10
		if o, ok := options(i)["limit"]; ok {
			limit = int(o.IntValue())
		}
		bets := b.ledger.History(ctx, i.GuildID, limit)
		_ = b.reply.SendEphemeralEmbed(s, i, ui.HistoryEmbed("📜 Latest bets", bets))
	case cmdMyBets:
		bets := b.ledger.ActiveFor(ctx, u.ID)
		_ = b.reply.SendEphemeralEmbed(s, i, ui.HistoryEmbed("🎲 Your active bets", bets))
	case cmdLeaveAll:
		left, err := b.coord.LeaveAll(ctx, u.ID)
		if err != nil {
			b.fail(s, i, name, err, false)
			return
		}
		if len(left) == 0 {
			_ = b.reply.SendEphemeral(s, i, "You are not waiting in any queue.")
			return
		}
		_ = b.reply.SendEphemeral(s, i, fmt.Sprintf("👋 Left %d queue(s).", len(left)))
	case cmdSetup:
		if !b.policy.Require(ctx, s, i, d.RoleAdmin) {
			return
		}
		opts := options(i)
		var roleID, channelID string
		if o, ok := opts["role"]; ok {
			roleID = o.RoleValue(nil, "").ID
		}
		if o, ok := opts["results_channel"]; ok {
			channelID = o.ChannelValue(nil).ID
		}
		cfg, err := b.settings.Setup(ctx, i.GuildID, roleID, channelID)
		if err != nil {
			b.fail(s, i, name, err, false)
			return
		}
		_ = b.reply.SendEphemeral(s, i, fmt.Sprintf("✅ Mediator role: %s • Results channel: %s",
			roleMention(cfg.MediatorRoleID), channelMention(cfg.ResultsChannelID)))
	case cmdMediatorCentral:
		b.slashCentral(ctx, s, i)
	case cmdResetQueues:
		b.slashReset(ctx, s, i)
	case cmdHelp:
		_ = b.reply.SendEphemeralEmbed(s, i, ui.HelpEmbed(helpSections()))
	default:
		_ = b.reply.SendEphemeral(s, i, userMessage(errUnknownAction))
	}
}

func threadErr(err error) error {
	if errors.Is(err, bet.ErrBetNotFound) {
		return errNotInThread
	}
	return err
}

func roleMention(id string) string {
	if id == "" {
		return "not set"
	}
	return "<@&" + id + ">"
}

func channelMention(id string) string {
	if id == "" {
		return "not set"
	}
	return "<#" + id + ">"
}

// parseAmount reads "100", "2.50" or "2,50".
func parseAmount(raw string, invalid error) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return decimal.Zero, invalid
	}
	return v, nil
}

func (b *Bot) slashPanel(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.policy.Require(ctx, s, i, d.RoleAdmin) {
		return
	}
	if !b.ent.IsServerEntitled(i.GuildID) {
		b.fail(s, i, cmdPanel, errNotEntitled, false)
		return
	}

	opts := options(i)
	meta := wager.PanelMeta{ServerID: i.GuildID, ChannelID: i.ChannelID}
	var err error
	if meta.Mode, err = wager.ParseMode(opts["mode"].StringValue()); err != nil {
		b.fail(s, i, cmdPanel, wager.ErrInvalidMode, false)
		return
	}
	if meta.Stake, err = parseAmount(opts["stake"].StringValue(), wager.ErrInvalidStake); err != nil {
		b.fail(s, i, cmdPanel, err, false)
		return
	}
	if meta.Fee, err = parseAmount(opts["fee"].StringValue(), wager.ErrInvalidFee); err != nil {
		b.fail(s, i, cmdPanel, err, false)
		return
	}
	if o, ok := opts["currency"]; ok {
		meta.Currency = wager.Currency(o.StringValue())
	}
	cur, ok := wager.ParseCurrency(string(meta.Currency))
	if !ok {
		b.fail(s, i, cmdPanel, wager.ErrInvalidCurrency, false)
		return
	}
	meta.Currency = cur
	if err := wager.ValidateTerms(meta.Stake, meta.Fee); err != nil {
		b.fail(s, i, cmdPanel, err, false)
		return
	}

	_ = b.reply.DeferEphemeral(s, i)

	// the queue id comes from the message id, so post first and attach the
	// buttons once the queue exists
	msgID, err := b.platform.SendMessage(ctx, i.ChannelID, "", ui.QueuePanelEmbed(meta, nil), nil)
	if err != nil {
		b.fail(s, i, cmdPanel, err, true)
		return
	}
	meta.MessageID = msgID
	if meta, err = b.coord.Open(ctx, meta); err != nil {
		b.fail(s, i, cmdPanel, err, true)
		return
	}
	if _, err := b.platform.UpdatePanel(ctx, meta.ChannelID, meta.MessageID, ui.QueuePanelEmbed(meta, nil), ui.QueuePanelComponents(meta.QueueID)); err != nil {
		b.fail(s, i, cmdPanel, err, true)
		return
	}
	_ = b.reply.FollowupEphemeral(s, i, "✅ Panel published: `"+meta.QueueID+"`")
}

func (b *Bot) slashCentral(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.policy.Require(ctx, s, i, d.RoleAdmin) {
		return
	}
	_ = b.reply.DeferEphemeral(s, i)
	id, err := b.platform.SendMessage(ctx, i.ChannelID, "",
		ui.CentralEmbed(b.pool.List(ctx, i.GuildID), b.pool.Capacity()), ui.CentralComponents())
	if err != nil {
		b.fail(s, i, cmdMediatorCentral, err, true)
		return
	}
	if err := b.settings.SetCentral(ctx, i.GuildID, i.ChannelID, id); err != nil {
		b.fail(s, i, cmdMediatorCentral, err, true)
		return
	}
	_ = b.reply.FollowupEphemeral(s, i, "✅ Mediator central published.")
}

func (b *Bot) slashReset(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.policy.Require(ctx, s, i, d.RoleAdmin) {
		return
	}
	_ = b.reply.DeferEphemeral(s, i)

	rep, err := ResetServer(ctx, i.GuildID, b.ledger, b.coord, b.log)
	// threads go after the cancellation notice queued by the ledger event
	for _, bt := range rep.Cancelled {
		convID := bt.ConversationID
		if convID == "" {
			continue
		}
		b.out.push("reset_thread:"+bt.ID, func(ctx context.Context) error {
			return b.platform.DeleteConversation(ctx, convID)
		})
	}
	if err != nil {
		b.fail(s, i, cmdResetQueues, err, true)
		return
	}
	_ = b.reply.FollowupEphemeral(s, i, fmt.Sprintf("🧹 Reset done: %d bet(s) cancelled, %d queued member(s) removed.",
		len(rep.Cancelled), rep.Cleared))
}

// ------------------- Components -------------------

func (b *Bot) handleComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	u := d.UserOf(i)
	b.log.Debug("component", zap.String("id", customID), zap.String("user", d.SafeName(u)))

	if !b.clicks.Allow(d.ClickKey(u.ID, customID)) {
		_ = b.reply.SendEphemeral(s, i, "⏳ Already processing your click.")
		return
	}

	action, target := ui.ParseCustomID(customID)
	switch action {
	case ui.ActionQueueJoin:
		b.joinQueue(ctx, s, i, target)

	case ui.ActionQueueLeave:
		if err := b.coord.Leave(ctx, target, u.ID); err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		_ = b.reply.SendEphemeral(s, i, "👋 Left.")

	case ui.ActionBetAccept:
		bt, err := b.ledger.Get(ctx, target)
		if err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		if !b.policy.Require(ctx, s, i, d.RoleMediator) {
			return
		}
		if bt.HasMediator() {
			b.fail(s, i, action, bet.ErrMediatorBound, false)
			return
		}
		saved, _ := b.pool.SavedContact(ctx, u.ID)
		_ = b.reply.OpenTextModal(s, i, ui.CustomID(ui.ActionBetContact, bt.ID),
			"Accept mediation", "Payment key (PIX, wallet…)", "where players send the stake", saved)

	case ui.ActionBetConfirm:
		bt, err := b.ledger.Get(ctx, target)
		if err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		b.confirmPayment(ctx, s, i, bt, u.ID)

	case ui.ActionBetCancel:
		bt, err := b.ledger.Get(ctx, target)
		if err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		b.cancelBet(ctx, s, i, bt)

	case ui.ActionCentralEnroll:
		if !b.policy.Require(ctx, s, i, d.RoleMediator) {
			return
		}
		saved, _ := b.pool.SavedContact(ctx, u.ID)
		_ = b.reply.OpenTextModal(s, i, ui.ActionCentralContact,
			"Enter the mediator queue", "Payment key (PIX, wallet…)", "where players send the stake", saved)

	case ui.ActionCentralWithdraw:
		if err := b.pool.Withdraw(ctx, i.GuildID, u.ID); err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		_ = b.reply.SendEphemeral(s, i, "👋 You left the mediator queue.")

	default:
		_ = b.reply.SendEphemeral(s, i, userMessage(errUnknownAction))
	}
}

func (b *Bot) joinQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, queueID string) {
	if !b.ent.IsServerEntitled(i.GuildID) {
		b.fail(s, i, ui.ActionQueueJoin, errNotEntitled, false)
		return
	}
	// a full group opens a thread before answering
	_ = b.reply.DeferEphemeral(s, i)

	res, err := b.coord.Join(ctx, queueID, d.UserOf(i).ID)
	if err != nil {
		b.fail(s, i, ui.ActionQueueJoin, err, true)
		return
	}
	if res.Matched {
		_ = b.reply.FollowupEphemeral(s, i, "🎯 Match found! Head to "+channelMention(res.Bet.ConversationID))
		return
	}
	_ = b.reply.FollowupEphemeral(s, i, fmt.Sprintf("🙌 Joined! %d waiting.", res.Size))
}

func (b *Bot) confirmPayment(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, bt wager.Bet, userID string) {
	side := bt.SideOf(userID)
	if side < 0 {
		b.fail(s, i, "confirm_payment", errNotPlayer, false)
		return
	}
	if _, err := b.ledger.ConfirmPayment(ctx, bt.ID, side); err != nil {
		b.fail(s, i, "confirm_payment", err, false)
		return
	}
	_ = b.reply.SendEphemeral(s, i, "💰 Payment confirmed for your team.")
}

// requireMediatorOf lets the bet's own mediator through, then anyone with
// the mediator role.
func (b *Bot) requireMediatorOf(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, bt wager.Bet) bool {
	if u := d.UserOf(i); bt.MediatorID != "" && u.ID == bt.MediatorID {
		return true
	}
	return b.policy.Require(ctx, s, i, d.RoleMediator)
}

func (b *Bot) cancelBet(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, bt wager.Bet) {
	if !b.requireMediatorOf(ctx, s, i, bt) {
		return
	}
	if _, err := b.ledger.Cancel(ctx, bt.ID); err != nil {
		b.fail(s, i, "cancel_bet", err, false)
		return
	}
	_ = b.reply.SendEphemeral(s, i, "🚫 Bet cancelled.")
}

// ------------------- Modals -------------------

func (b *Bot) handleModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	action, target := ui.ParseCustomID(i.ModalSubmitData().CustomID)
	u := d.UserOf(i)
	contact := d.ModalValue(i)

	switch action {
	case ui.ActionBetContact:
		if !b.policy.Require(ctx, s, i, d.RoleMediator) {
			return
		}
		if _, err := b.ledger.AcceptMediation(ctx, target, u.ID, contact); err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		_ = b.reply.SendEphemeral(s, i, "🛡️ You are mediating this bet.")

	case ui.ActionCentralContact:
		if !b.policy.Require(ctx, s, i, d.RoleMediator) {
			return
		}
		updated, err := b.pool.Enroll(ctx, i.GuildID, u.ID, contact)
		if err != nil {
			b.fail(s, i, action, err, false)
			return
		}
		if updated {
			_ = b.reply.SendEphemeral(s, i, "✅ Contact updated, your place in the queue is kept.")
			return
		}
		_ = b.reply.SendEphemeral(s, i, fmt.Sprintf("✅ You are in the mediator queue (%d/%d).",
			len(b.pool.List(ctx, i.GuildID)), b.pool.Capacity()))

	default:
		_ = b.reply.SendEphemeral(s, i, userMessage(errUnknownAction))
	}
}
