// Package settings keeps the per-server configuration chosen with /setup and
// /mediator-central.
package settings

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

var ErrServerRequired = fault.New(fault.KindValidation, "this command only works inside a server")

type Store struct {
	gw  *storage.Gateway
	log *zap.Logger
}

func NewStore(gw *storage.Gateway, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{gw: gw, log: log.With(zap.String("component", "settings"))}
}

// Get returns the server settings; unknown servers get the zero value.
func (st *Store) Get(ctx context.Context, serverID string) wager.ServerSettings {
	var out wager.ServerSettings
	st.gw.View(ctx, func(s *storage.Snapshot) { out = s.Servers[serverID] })
	return out
}

// Update applies fn to the server settings and persists the result.
func (st *Store) Update(ctx context.Context, serverID string, fn func(*wager.ServerSettings)) (wager.ServerSettings, error) {
	if serverID == "" {
		return wager.ServerSettings{}, ErrServerRequired
	}
	var out wager.ServerSettings
	err := st.gw.Update(ctx, func(s *storage.Snapshot) error {
		cur := s.Servers[serverID]
		fn(&cur)
		s.Servers[serverID] = cur
		out = cur
		return nil
	})
	if err != nil {
		return wager.ServerSettings{}, err
	}
	st.log.Info("server settings updated", zap.String("server", serverID))
	return out, nil
}

// Setup records the mediator role and results channel in one write.
func (st *Store) Setup(ctx context.Context, serverID, mediatorRoleID, resultsChannelID string) (wager.ServerSettings, error) {
	return st.Update(ctx, serverID, func(cfg *wager.ServerSettings) {
		if mediatorRoleID != "" {
			cfg.MediatorRoleID = mediatorRoleID
		}
		if resultsChannelID != "" {
			cfg.ResultsChannelID = resultsChannelID
		}
	})
}

// SetCentral remembers where the mediator central panel lives.
func (st *Store) SetCentral(ctx context.Context, serverID, channelID, messageID string) error {
	_, err := st.Update(ctx, serverID, func(cfg *wager.ServerSettings) {
		cfg.CentralChannelID = channelID
		cfg.CentralMessageID = messageID
	})
	return err
}

// Servers lists every server with stored settings.
func (st *Store) Servers(ctx context.Context) []string {
	var ids []string
	st.gw.View(ctx, func(s *storage.Snapshot) {
		for id := range s.Servers {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}
