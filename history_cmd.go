package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/eventlog"
)

var (
	historyLimit int
	historyPrune time.Duration

	historyCmd = &cobra.Command{
		Use:   "history [SESSION_ID]",
		Short: "Show recorded sessions and their events",
		Long: paragraph(fmt.Sprintf("\n%s the sessions recorded in the event store, or the timeline of one session. "+
			"Sessions are only recorded when event_store.enabled is set.", keyword("List"))),
		Example: paragraph("speakstream history\nspeakstream history 3f0c...\nspeakstream history --prune 720h"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.EventStore.Path
			if path == "" {
				var err error
				if path, err = config.DefaultEventStorePath(); err != nil {
					return err
				}
			}
			store, err := eventlog.Open(cmd.Context(), path, log.Default())
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			out := cmd.OutOrStdout()

			if historyPrune > 0 {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-historyPrune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %s sessions.\n", humanize.Comma(n))
				return nil
			}

			if len(args) == 1 {
				sess, err := store.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s, %s\n", keyword(sess.ID), sess.Engine, humanize.Time(sess.StartedAt))
				records, err := store.ListSessionEvents(cmd.Context(), sess.ID, historyLimit)
				if err != nil {
					return err
				}
				for _, r := range records {
					line := fmt.Sprintf("%s %-16s", r.CreatedAt.Format("15:04:05.000"), r.Type)
					if r.Index >= 0 {
						line += fmt.Sprintf(" #%d", r.Index)
					}
					if r.Text != "" {
						line += " " + r.Text
					}
					if r.Error != "" {
						line += " " + warnStyle.Render(r.Error)
					}
					fmt.Fprintln(out, line)
				}
				return nil
			}

			sessions, err := store.RecentSessions(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			for _, s := range sessions {
				status := faintStyle.Render("unfinished")
				if !s.FinishedAt.IsZero() {
					status = fmt.Sprintf("%d sentences, %d failed", s.Sentences, s.Failures)
				}
				fmt.Fprintf(out, "%s  %-8s %-14s %s  %s\n", s.ID, s.Engine, humanize.Time(s.StartedAt), status, s.Path)
			}
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of rows to show")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete sessions older than this instead of listing")
}
