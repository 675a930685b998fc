package app

import (
	"go.uber.org/zap"

	"interviewrec/audio"
	"interviewrec/events"
	"interviewrec/internal/config"
	"interviewrec/internal/service"
	"interviewrec/session"
	"interviewrec/transcribe"
)

// App holds the wired components shared by every command.
type App struct {
	Config        *config.Config
	Bus           *events.Bus
	Resolver      audio.DeviceResolver
	Recorder      *session.Recorder
	Local         *transcribe.LocalTranscriber
	Remote        *transcribe.RemoteTranscriber
	Dispatcher    *transcribe.Dispatcher
	Transcription *service.TranscriptionService
	Recording     *service.RecordingService
}

func New(cfg *config.Config, log *zap.SugaredLogger) *App {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	bus := events.NewBus()
	resolver := &audio.PulseResolver{Pactl: cfg.PactlPath}

	recorder := session.NewRecorder(session.Config{
		FFmpegPath: cfg.FFmpegPath,
		StopGrace:  cfg.StopGrace,
		Resolver:   resolver,
	}, bus, log.Named("recorder"))

	local := transcribe.NewLocalTranscriber(cfg.RecognizerPath, log.Named("whisper"))
	remote := transcribe.NewRemoteTranscriber(transcribe.RemoteConfig{
		Endpoint:       cfg.RemoteEndpoint,
		CredentialEnv:  cfg.CredentialEnv,
		PollInterval:   cfg.PollInterval,
		PollAttempts:   cfg.PollAttempts,
		RequestTimeout: cfg.RequestTimeout,
		MinSpeakers:    cfg.MinSpeakers,
		MaxSpeakers:    cfg.MaxSpeakers,
	}, log.Named("remote"))
	dispatcher := transcribe.NewDispatcher(local, remote, log.Named("dispatcher"))

	ts := service.NewTranscriptionService(dispatcher, service.Options{
		Language: cfg.Language,
		Model:    cfg.Model,
		Mode:     cfg.Mode,
	}, bus, log.Named("transcription"))
	ts.KeepAudio = cfg.KeepAudio
	ts.FFprobePath = cfg.FFprobePath
	ts.Credential = remote.Credential

	rs := service.NewRecordingService(recorder, ts, cfg.OutputDir, bus, log.Named("recording"))

	return &App{
		Config:        cfg,
		Bus:           bus,
		Resolver:      resolver,
		Recorder:      recorder,
		Local:         local,
		Remote:        remote,
		Dispatcher:    dispatcher,
		Transcription: ts,
		Recording:     rs,
	}
}
