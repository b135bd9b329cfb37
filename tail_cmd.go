package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/speakstream/internal/stream"
)

var (
	tailFromStart bool
	tailIdle      time.Duration

	tailCmd = &cobra.Command{
		Use:   "tail FILE",
		Short: "Speak text as it is appended to a file",
		Long: paragraph(fmt.Sprintf("\n%s a file and speak whatever is written to it. "+
			"The response ends once nothing new has arrived for the idle time.", keyword("Follow"))),
		Example: paragraph("llm 'write a poem' > poem.txt & speakstream tail poem.txt"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := stream.NewTailSource(args[0], tailFromStart, tailIdle)
			if err != nil {
				return err
			}
			defer src.Close() //nolint:errcheck

			a, err := newApp(cmd.Context(), cfg, appOptions{subtitles: subtitled, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			res, err := a.speak(cmd.Context(), src)
			return report(cmd, res, err)
		},
	}
)

func init() {
	tailCmd.Flags().BoolVar(&tailFromStart, "from-start", false, "speak what is already in the file first")
	tailCmd.Flags().DurationVar(&tailIdle, "idle", 3*time.Second, "end the response after this long without new text")
}
