package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"interviewrec/audio"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			cfg := deps.Config
			a := deps.App
			out := deps.Out
			failed := 0
			check := func(name string, detail string, err error) {
				if err != nil {
					failed++
					out.SetupCheck(name, false, err.Error())
					return
				}
				out.SetupCheck(name, true, detail)
			}

			out.Info("Checking setup...")

			bin, err := audio.FindBinary("ffmpeg", cfg.FFmpegPath)
			check("ffmpeg", bin, err)

			if dev, err := a.Resolver.Resolve(ctx); err != nil {
				check("audio devices", "", err)
			} else {
				check("audio devices", fmt.Sprintf("monitor=%s source=%s", dev.Monitor, dev.Source), nil)
			}

			bin, err = a.Local.Check(ctx)
			if cfg.Mode == "local" {
				check("whisper", bin, err)
			} else if err != nil {
				out.SetupCheck("whisper", false, "not available (only needed for local mode)")
			} else {
				check("whisper", bin, nil)
			}

			if cfg.RemoteEndpoint == "" {
				if cfg.Mode == "remote" {
					check("remote endpoint", "", errors.New("not configured"))
				}
			} else {
				check("remote endpoint", cfg.RemoteEndpoint, nil)
				_, err := a.Remote.Credential()
				check("credential", "$"+cfg.CredentialEnv+" is set", err)
			}

			out.SetupCheck("output directory", true, cfg.OutputDir)
			if cfg.Path != "" {
				out.SetupCheck("config", true, cfg.Path)
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			out.Success("Ready to record")
			return nil
		},
	}
}
