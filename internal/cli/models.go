package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"interviewrec/transcribe"
)

func NewModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List whisper models accepted in local mode",
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range transcribe.Models() {
				if m == transcribe.DefaultModel {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (default)\n", m)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
		},
	}
}
