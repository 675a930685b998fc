package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"interviewrec/internal/service"
	"interviewrec/session"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var (
		name         string
		noTranscribe bool
		opts         service.Options
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an interview until Ctrl+C",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := deps.App

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderCtx, stopRender := context.WithCancel(context.Background())
			rendered := render(renderCtx, a.Bus, deps.Out)
			defer func() {
				stopRender()
				<-rendered
			}()

			sess, err := a.Recording.Start(sigCtx, name)
			if err != nil {
				return err
			}
			deps.Out.RecordingStarted(sess.OutputPath)

			<-sigCtx.Done()

			// The signal context is gone; finalizing gets its own budget.
			stopCtx, cancel := context.WithTimeout(context.Background(), deps.Config.StopGrace+5*time.Second)
			defer cancel()
			sess, _, err = a.Recording.Stop(stopCtx, false)
			if err != nil {
				return err
			}
			if sess == nil {
				return errors.New("recording stopped unexpectedly")
			}
			deps.Out.RecordingStopped(session.FormatElapsed(int64(sess.Duration()/time.Second)), sess.Size)

			if noTranscribe || !deps.Config.AutoTranscribe {
				return nil
			}

			// A second Ctrl+C aborts the transcription.
			runCtx, stopRun := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stopRun()

			a.Transcription.MarkRecorded(sess.OutputPath)
			deps.Out.Transcribing(sess.OutputPath)
			_, err = a.Transcription.Run(runCtx, sess.OutputPath, opts)
			return err
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "suffix for the recording file name")
	cmd.Flags().BoolVar(&noTranscribe, "no-transcribe", false, "only record, skip transcription")
	addTranscribeFlags(cmd, &opts)

	return cmd
}

func addTranscribeFlags(cmd *cobra.Command, opts *service.Options) {
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "transcription mode: local or remote")
	cmd.Flags().StringVarP(&opts.Language, "language", "l", "", "spoken language code")
	cmd.Flags().StringVar(&opts.Model, "model", "", "whisper model for local mode")
}
