package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"interviewrec/internal/service"
)

func NewTranscribeCmd(deps *Dependencies) *cobra.Command {
	var opts service.Options

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an existing audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderCtx, stopRender := context.WithCancel(context.Background())
			rendered := render(renderCtx, deps.App.Bus, deps.Out)
			defer func() {
				stopRender()
				<-rendered
			}()

			deps.Out.Transcribing(args[0])
			_, err := deps.App.Transcription.Run(ctx, args[0], opts)
			return err
		},
	}

	addTranscribeFlags(cmd, &opts)
	return cmd
}
