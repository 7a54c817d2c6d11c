package discord

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
)

const (
	codeUnknownMessage = 10008
	threadArchiveMins  = 1440
)

// Platform is the chat adapter used by the app layer: bet threads, plain
// messages and the long-lived panel messages.
type Platform struct {
	s   *discordgo.Session
	log *zap.Logger

	chLocks sync.Map // channelID -> *sync.Mutex
}

func NewPlatform(s *discordgo.Session, log *zap.Logger) *Platform {
	if log == nil {
		log = zap.NewNop()
	}
	return &Platform{s: s, log: log.With(zap.String("component", "discord"))}
}

func (p *Platform) Session() *discordgo.Session { return p.s }

func (p *Platform) chanLock(channelID string) *sync.Mutex {
	v, _ := p.chLocks.LoadOrStore(channelID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateConversation opens a private thread under originChannelID and adds the
// members. Servers without private threads answer 403, then a public thread
// is used instead.
func (p *Platform) CreateConversation(ctx context.Context, serverID, originChannelID, title string, members []string) (string, error) {
	opt := discordgo.WithContext(ctx)
	th, err := p.s.ThreadStartComplex(originChannelID, &discordgo.ThreadStart{
		Name:                title,
		AutoArchiveDuration: threadArchiveMins,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	}, opt)
	if isStatus(err, http.StatusForbidden) {
		p.log.Warn("private thread denied, using public thread",
			zap.String("server", serverID), zap.String("channel", originChannelID))
		th, err = p.s.ThreadStartComplex(originChannelID, &discordgo.ThreadStart{
			Name:                title,
			AutoArchiveDuration: threadArchiveMins,
			Type:                discordgo.ChannelTypeGuildPublicThread,
		}, opt)
	}
	if err != nil {
		return "", fault.External("create thread", err)
	}
	for _, uid := range members {
		if err := p.s.ThreadMemberAdd(th.ID, uid, opt); err != nil {
			p.log.Warn("add thread member failed", zap.String("thread", th.ID), zap.String("user", uid), zap.Error(err))
		}
	}
	p.log.Info("conversation created", zap.String("thread", th.ID), zap.String("server", serverID))
	return th.ID, nil
}

// AddToConversation invites one more user (the mediator) to a bet thread.
func (p *Platform) AddToConversation(ctx context.Context, conversationID, userID string) error {
	if err := p.s.ThreadMemberAdd(conversationID, userID, discordgo.WithContext(ctx)); err != nil {
		return fault.External("add thread member", err)
	}
	return nil
}

// DeleteConversation is best effort; the thread may already be gone.
func (p *Platform) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := p.s.ChannelDelete(conversationID, discordgo.WithContext(ctx)); err != nil {
		return fault.External("delete thread", err)
	}
	return nil
}

// SendMessage posts text, an embed and components to a channel or thread.
// Any of them may be empty.
func (p *Platform) SendMessage(ctx context.Context, channelID, content string, emb *discordgo.MessageEmbed, comps []discordgo.MessageComponent) (string, error) {
	data := &discordgo.MessageSend{Content: content, Components: comps}
	if emb != nil {
		data.Embeds = []*discordgo.MessageEmbed{emb}
	}
	msg, err := p.s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", fault.External("send message", err)
	}
	return msg.ID, nil
}

// UpdatePanel edits the panel message. An empty messageID, or one Discord no
// longer knows (10008), makes it post a fresh message. The returned id is the
// one now showing the panel.
func (p *Platform) UpdatePanel(ctx context.Context, channelID, messageID string, emb *discordgo.MessageEmbed, comps []discordgo.MessageComponent) (string, error) {
	mu := p.chanLock(channelID)
	mu.Lock()
	defer mu.Unlock()

	if messageID != "" {
		embeds := []*discordgo.MessageEmbed{emb}
		compsCopy := comps
		_, err := p.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    channelID,
			ID:         messageID,
			Embeds:     &embeds,
			Components: &compsCopy,
		}, discordgo.WithContext(ctx))
		if err == nil {
			p.log.Debug("panel edited", zap.String("channel", channelID), zap.String("message", messageID))
			return messageID, nil
		}
		if !isCode(err, codeUnknownMessage) {
			return messageID, fault.External("edit panel", err)
		}
		p.log.Info("panel message gone, recreating", zap.String("channel", channelID), zap.String("message", messageID))
	}

	msg, err := p.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{emb},
		Components: comps,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fault.External("create panel", err)
	}
	p.log.Info("panel created", zap.String("channel", channelID), zap.String("message", msg.ID))
	return msg.ID, nil
}

// Member implements Directory from the state cache, falling back to REST.
func (p *Platform) Member(ctx context.Context, serverID, userID string) (MemberInfo, error) {
	opt := discordgo.WithContext(ctx)
	g, err := p.s.State.Guild(serverID)
	if err != nil {
		if g, err = p.s.Guild(serverID, opt); err != nil {
			return MemberInfo{}, fault.External("fetch guild", err)
		}
	}
	m, err := p.s.State.Member(serverID, userID)
	if err != nil {
		if m, err = p.s.GuildMember(serverID, userID, opt); err != nil {
			return MemberInfo{}, fault.External("fetch member", err)
		}
	}

	info := MemberInfo{Owner: g.OwnerID == userID, Roles: m.Roles}
	has := make(map[string]struct{}, len(m.Roles))
	for _, r := range m.Roles {
		has[r] = struct{}{}
	}
	for _, r := range g.Roles {
		if _, ok := has[r.ID]; ok && r.Permissions&discordgo.PermissionAdministrator != 0 {
			info.Admin = true
			break
		}
	}
	return info, nil
}

func isCode(err error, code int) bool {
	var re *discordgo.RESTError
	return errors.As(err, &re) && re.Message != nil && re.Message.Code == code
}

func isStatus(err error, status int) bool {
	var re *discordgo.RESTError
	return errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == status
}
