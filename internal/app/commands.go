// internal/app/commands.go
package app

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/ui"
)

const (
	cmdPanel           = "panel"
	cmdConfirmPayment  = "confirm-payment"
	cmdResolve         = "resolve"
	cmdCancelBet       = "cancel-bet"
	cmdHistory         = "history"
	cmdMyBets          = "my-bets"
	cmdLeaveAll        = "leave-all"
	cmdSetup           = "setup"
	cmdMediatorCentral = "mediator-central"
	cmdResetQueues     = "reset-queues"
	cmdHelp            = "help"
)

var (
	adminPerm int64 = discordgo.PermissionAdministrator
	minOne          = 1.0
)

func modeChoices() []*discordgo.ApplicationCommandOptionChoice {
	modes := []string{"1v1", "1v1-mob", "1v1-emu", "2v2", "2v2-mob", "2v2-misto", "4v4", "4v4-misto"}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(modes))
	for _, m := range modes {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: wager.MustMode(m).Title(), Value: m})
	}
	return out
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:                     cmdPanel,
		Description:              "Publish a wager queue panel in this channel",
		DefaultMemberPermissions: &adminPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "mode", Description: "Game mode", Required: true, Choices: modeChoices()},
			{Type: discordgo.ApplicationCommandOptionString, Name: "stake", Description: "Stake per player, e.g. 100 or 2.50", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "fee", Description: "Mediator fee, 0 for none", Required: true},
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "currency", Description: "Currency (default sonhos)",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Sonhos", Value: string(wager.CurrencySonhos)},
					{Name: "Cash", Value: string(wager.CurrencyCash)},
				},
			},
		},
	},
	{
		Name:        cmdConfirmPayment,
		Description: "Confirm you sent your payment to the mediator (inside the bet thread)",
	},
	{
		Name:        cmdResolve,
		Description: "Declare the winner of this bet (mediators)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "winner", Description: "Winning player", Required: true},
		},
	},
	{
		Name:        cmdCancelBet,
		Description: "Cancel this bet (mediators)",
	},
	{
		Name:        cmdHistory,
		Description: "Show the latest finished bets of this server",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "limit", Description: "How many (default 10)", MinValue: &minOne, MaxValue: 25},
		},
	},
	{
		Name:        cmdMyBets,
		Description: "Show your active bets",
	},
	{
		Name:        cmdLeaveAll,
		Description: "Leave every queue you are waiting in",
	},
	{
		Name:                     cmdSetup,
		Description:              "Configure the mediator role and results channel",
		DefaultMemberPermissions: &adminPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Mediator role"},
			{
				Type: discordgo.ApplicationCommandOptionChannel, Name: "results_channel", Description: "Where resolved bets are announced",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			},
		},
	},
	{
		Name:                     cmdMediatorCentral,
		Description:              "Publish the mediator central in this channel",
		DefaultMemberPermissions: &adminPerm,
	},
	{
		Name:                     cmdResetQueues,
		Description:              "Cancel every open bet of this server and clear its queues",
		DefaultMemberPermissions: &adminPerm,
	},
	{
		Name:        cmdHelp,
		Description: "List the bot's commands",
	},
}

// helpAudience groups the commands shown by /help.
var helpAudience = []struct {
	name     string
	commands []string
}{
	{"Players", []string{cmdConfirmPayment, cmdMyBets, cmdHistory, cmdLeaveAll, cmdHelp}},
	{"Mediators", []string{cmdResolve, cmdCancelBet}},
	{"Admins", []string{cmdPanel, cmdSetup, cmdMediatorCentral, cmdResetQueues}},
}

func helpSections() []ui.HelpSection {
	desc := make(map[string]string, len(commands))
	for _, c := range commands {
		desc[c.Name] = c.Description
	}
	out := make([]ui.HelpSection, 0, len(helpAudience))
	for _, a := range helpAudience {
		sec := ui.HelpSection{Name: a.name}
		for _, name := range a.commands {
			sec.Lines = append(sec.Lines, fmt.Sprintf("`/%s` - %s", name, desc[name]))
		}
		out = append(out, sec)
	}
	return out
}

// RegisterCommands overwrites the command set; guildID "" registers them
// globally.
func RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, guildID, commands)
	return err
}
