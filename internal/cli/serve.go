package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"interviewrec/internal/api"
	"interviewrec/internal/version"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var opts api.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control server for front-ends",
		Long:  "Serves the HTTP/WebSocket API and the gRPC control stream. Recording and transcription events are pushed to every connected client.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := deps.App
			opts.AutoTranscribe = deps.Config.AutoTranscribe
			opts.Version = version.Version

			deps.Log.Infof("Control server: http=%q grpc=%q", opts.HTTPAddr, opts.GRPCAddr)
			srv := api.NewServer(a.Recording, a.Transcription, a.Bus, opts, deps.Log.Named("api"))
			err := srv.Run(ctx)

			// Leave no encoder running behind a stopped server.
			if shutdownErr := a.Recorder.Shutdown(cmd.Context()); shutdownErr != nil {
				deps.Log.Warnf("Shutdown: %v", shutdownErr)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http", deps.Config.HTTPAddr, "HTTP/WebSocket listen address, empty to disable")
	cmd.Flags().StringVar(&opts.GRPCAddr, "grpc", deps.Config.GRPCAddr, "gRPC address (unix:<path>, npipe:<name> or host:port), empty to disable")

	return cmd
}
