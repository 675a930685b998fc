package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"interviewrec/session"
)

func NewListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded interviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := deps.App.Recording.Library.List()
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				deps.Out.Info("No recordings in " + deps.Config.OutputDir)
				return nil
			}

			w := cmd.OutOrStdout()
			for _, r := range recs {
				audioMark, textMark := "-", "-"
				if r.AudioPath != "" {
					audioMark = "audio"
				}
				if r.TranscriptPath != "" {
					textMark = "transcript"
				}
				length := ""
				if r.Duration > 0 {
					length = session.FormatElapsed(int64(r.Duration.Seconds()))
				}
				fmt.Fprintf(w, "%-40s %s  %-8s %-5s %-10s\n",
					r.Name, r.StartTime.Local().Format("2006-01-02 15:04"), length, audioMark, textMark)
			}
			return nil
		},
	}
}

func NewDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>...",
		Short: "Delete recordings with their transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if err := deps.App.Recording.Library.Delete(name); err != nil {
					return err
				}
				deps.Out.Success("Deleted " + name)
			}
			return nil
		},
	}
}
