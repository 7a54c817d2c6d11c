package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jose-valero/wager-queue-bot/internal/storage"
	"github.com/jose-valero/wager-queue-bot/pkg/config"
)

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print a summary of the stored state without connecting to Discord",
		Long: `Loads the snapshot the same way the bot does at startup (mirror first,
then the local file and its backups) and prints what it holds.
Recovery writes (healing an empty backend) happen here too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			log, err := buildLogger(opts, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			gw, closeMirror, err := openGateway(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeMirror() }()

			snap := gw.Load(cmd.Context())
			if raw {
				data, err := snap.Encode()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			printSummary(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the encoded snapshot instead of a summary")
	return cmd
}

func printSummary(w io.Writer, s *storage.Snapshot) {
	fmt.Fprintf(w, "revision:    %d\n", s.Revision)
	fmt.Fprintf(w, "panels:      %d\n", len(s.Panels))

	ids := make([]string, 0, len(s.Queues))
	for id := range s.Queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-28s waiting=%d pending=%d\n", id, len(s.Queues[id]), len(s.Pending[id]))
	}
	fmt.Fprintf(w, "active bets: %d\n", len(s.ActiveBets))
	fmt.Fprintf(w, "history:     %d\n", len(s.History))

	servers := make([]string, 0, len(s.Pools))
	for id := range s.Pools {
		servers = append(servers, id)
	}
	sort.Strings(servers)
	for _, id := range servers {
		fmt.Fprintf(w, "mediators %s: %d\n", id, len(s.Pools[id]))
	}
}
