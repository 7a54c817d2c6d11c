package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeInteractions struct {
	fail      bool
	responses []*discordgo.InteractionResponse
	followups []*discordgo.WebhookParams
}

func (f *fakeInteractions) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	if f.fail {
		return errors.New("unknown interaction")
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeInteractions) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.fail {
		return nil, errors.New("unknown webhook")
	}
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, nil
}

func interactionFrom(guildID, userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		GuildID: guildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID, Username: userID}},
	}}
}

func TestResponder_LogsToItsOwnLogger(t *testing.T) {
	coreA, logsA := observer.New(zap.WarnLevel)
	coreB, logsB := observer.New(zap.WarnLevel)
	a, b := NewResponder(zap.New(coreA)), NewResponder(zap.New(coreB))

	s := &fakeInteractions{fail: true}
	i := interactionFrom("S", "u1")
	require.Error(t, a.SendEphemeral(s, i, "hi"))
	require.Error(t, a.FollowupEphemeral(s, i, "later"))

	assert.Equal(t, 2, logsA.Len())
	assert.Zero(t, logsB.Len(), "responders do not share a logger")
	assert.Equal(t, "interaction response failed", logsA.All()[0].Message)

	require.Error(t, b.DeferEphemeral(s, i))
	assert.Equal(t, 1, logsB.Len())
	assert.Equal(t, 2, logsA.Len())
}

func TestResponder_EphemeralFlag(t *testing.T) {
	r := NewResponder(nil)
	s := &fakeInteractions{}
	i := interactionFrom("S", "u1")

	require.NoError(t, r.SendEphemeral(s, i, "hi"))
	require.NoError(t, r.FollowupEphemeral(s, i, "later"))
	require.Len(t, s.responses, 1)
	assert.Equal(t, ephemeralFlag, s.responses[0].Data.Flags)
	assert.Equal(t, "hi", s.responses[0].Data.Content)
	require.Len(t, s.followups, 1)
	assert.Equal(t, ephemeralFlag, s.followups[0].Flags)
}

func TestPolicy_RequireAnswersDenial(t *testing.T) {
	dir := fakeDir{"player": {Roles: []string{"r-other"}}, "owner": {Owner: true}}
	p := NewPolicy(dir, NewResponder(nil), nil, nil)
	s := &fakeInteractions{}
	ctx := context.Background()

	assert.True(t, p.Require(ctx, s, interactionFrom("S", "owner"), RoleAdmin))
	assert.Empty(t, s.responses)

	assert.False(t, p.Require(ctx, s, interactionFrom("S", "player"), RoleAdmin))
	require.Len(t, s.responses, 1)
	assert.Contains(t, s.responses[0].Data.Content, "permission")
	assert.Equal(t, ephemeralFlag, s.responses[0].Data.Flags)
}
