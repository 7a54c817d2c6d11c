// Privilege checks: admins come from the Administrator permission, guild
// ownership or ADMIN_ROLE_IDS; mediators from the role chosen with /setup.

package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

type Role int

const (
	RoleMediator Role = iota + 1
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleMediator:
		return "mediator"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

type MemberInfo struct {
	Owner bool
	Admin bool // Administrator through any of the member's roles
	Roles []string
}

// Directory resolves guild members; Platform is the real one.
type Directory interface {
	Member(ctx context.Context, serverID, userID string) (MemberInfo, error)
}

type Policy struct {
	dir          Directory
	reply        *Responder
	adminRoleIDs map[string]struct{}
	mediatorRole func(ctx context.Context, serverID string) string
}

// NewPolicy builds the check. Denials are answered through reply.
// mediatorRole looks up the per-server mediator role and may be nil.
func NewPolicy(dir Directory, reply *Responder, adminRoleIDs []string, mediatorRole func(ctx context.Context, serverID string) string) *Policy {
	if reply == nil {
		reply = NewResponder(nil)
	}
	ids := make(map[string]struct{}, len(adminRoleIDs))
	for _, id := range adminRoleIDs {
		ids[id] = struct{}{}
	}
	return &Policy{dir: dir, reply: reply, adminRoleIDs: ids, mediatorRole: mediatorRole}
}

// IsAuthorized reports whether the user holds role in the server. Lookup
// failures deny.
func (p *Policy) IsAuthorized(ctx context.Context, serverID, userID string, role Role) bool {
	if serverID == "" || userID == "" {
		return false
	}
	m, err := p.dir.Member(ctx, serverID, userID)
	if err != nil {
		return false
	}
	if p.admin(m) {
		return true
	}
	if role != RoleMediator || p.mediatorRole == nil {
		return false
	}
	want := p.mediatorRole(ctx, serverID)
	if want == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == want {
			return true
		}
	}
	return false
}

func (p *Policy) admin(m MemberInfo) bool {
	if m.Owner || m.Admin {
		return true
	}
	for _, r := range m.Roles {
		if _, ok := p.adminRoleIDs[r]; ok {
			return true
		}
	}
	return false
}

// Require answers with an ephemeral denial and returns false when the user
// of the interaction lacks role.
func (p *Policy) Require(ctx context.Context, s Interactions, i *discordgo.InteractionCreate, role Role) bool {
	u := UserOf(i)
	if u != nil && p.IsAuthorized(ctx, i.GuildID, u.ID, role) {
		return true
	}
	_ = p.reply.SendEphemeral(s, i, "⛔ You don't have permission for this action.")
	return false
}
