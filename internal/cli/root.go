package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interviewrec/internal/app"
	"interviewrec/internal/config"
	"interviewrec/internal/output"
	"interviewrec/internal/version"
)

type Dependencies struct {
	App    *app.App
	Config *config.Config
	Log    *zap.SugaredLogger
	Out    *output.Formatter
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "interviewrec",
		Short:         "Record interviews and transcribe them",
		Long:          "Records system audio and microphone into one MP3 and transcribes it with a local whisper install or a remote diarizing service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewTranscribeCmd(deps))
	rootCmd.AddCommand(NewListCmd(deps))
	rootCmd.AddCommand(NewDeleteCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewModelsCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
