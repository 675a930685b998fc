package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Remote job statuses.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

const (
	DefaultCredentialEnv  = "RUNPOD_API_KEY"
	DefaultPollInterval   = 5 * time.Second
	DefaultPollAttempts   = 120
	DefaultRequestTimeout = 30 * time.Second
)

// RemoteConfig configures the remote job client.
type RemoteConfig struct {
	// Endpoint is the job submission URL, e.g. https://api.runpod.ai/v2/<id>/run.
	Endpoint string
	// CredentialEnv names the environment variable holding the bearer token.
	CredentialEnv  string
	PollInterval   time.Duration
	PollAttempts   int
	RequestTimeout time.Duration
	// MinSpeakers and MaxSpeakers are optional diarization hints.
	MinSpeakers int
	MaxSpeakers int
}

// RemoteTranscriber submits recordings to a serverless diarization service
// and polls until the job finishes.
type RemoteTranscriber struct {
	cfg    RemoteConfig
	client *resty.Client
	log    *zap.SugaredLogger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRemoteTranscriber creates a client for cfg.Endpoint.
func NewRemoteTranscriber(cfg RemoteConfig, log *zap.SugaredLogger) *RemoteTranscriber {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.CredentialEnv == "" {
		cfg.CredentialEnv = DefaultCredentialEnv
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	client := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(log)

	return &RemoteTranscriber{
		cfg:    cfg,
		client: client,
		log:    log,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type jobInput struct {
	AudioBase64 string `json:"audio_base64"`
	Language    string `json:"language"`
	Format      string `json:"format"`
	MinSpeakers int    `json:"min_speakers,omitempty"`
	MaxSpeakers int    `json:"max_speakers,omitempty"`
}

type jobRequest struct {
	Input jobInput `json:"input"`
}

type jobResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func (r *jobResponse) hasOutput() bool {
	out := bytes.TrimSpace(r.Output)
	return len(out) > 0 && !bytes.Equal(out, []byte("null"))
}

// Credential returns the bearer token from the environment.
func (t *RemoteTranscriber) Credential() (string, error) {
	cred := strings.TrimSpace(os.Getenv(t.cfg.CredentialEnv))
	if cred == "" {
		return "", fmt.Errorf("%w: $%s is empty", ErrMissingCredential, t.cfg.CredentialEnv)
	}
	return cred, nil
}

// StatusURL derives the status endpoint of a job from the submission URL by
// replacing its last path segment with status/<id>.
func StatusURL(endpoint, id string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	base := path.Dir(strings.TrimSuffix(u.Path, "/"))
	u.Path = path.Join(base, "status", id)
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}

// Transcribe uploads the file and waits for the diarized dialogue.
func (t *RemoteTranscriber) Transcribe(ctx context.Context, req Request) (*Result, error) {
	cred, err := t.Credential()
	if err != nil {
		return nil, err
	}
	if t.cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", ErrRemoteRequestFailed)
	}

	audio, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	body := jobRequest{Input: jobInput{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Language:    req.Language,
		Format:      "dialogue",
		MinSpeakers: t.cfg.MinSpeakers,
		MaxSpeakers: t.cfg.MaxSpeakers,
	}}

	t.log.Infof("Submitting %s to remote service (%d bytes)", req.Path, len(audio))

	var submitted jobResponse
	if err := t.do(ctx, cred, resty.MethodPost, t.cfg.Endpoint, body, &submitted); err != nil {
		return nil, err
	}

	switch {
	case submitted.Status == StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrRemoteJobFailed, errorText(submitted.Error))
	case submitted.hasOutput():
		t.log.Info("Remote service returned the result synchronously")
		return decodeOutput(submitted.Output)
	case submitted.ID != "":
		req.progress(Progress{State: JobSubmitted, RemoteID: submitted.ID, Status: submitted.Status})
		return t.poll(ctx, cred, submitted.ID, req)
	}
	return nil, fmt.Errorf("%w: response has neither output nor job id", ErrRemoteRequestFailed)
}

func (t *RemoteTranscriber) poll(ctx context.Context, cred, id string, req Request) (*Result, error) {
	statusURL, err := StatusURL(t.cfg.Endpoint, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteRequestFailed, err)
	}

	t.log.Infof("Remote job %s submitted, polling %s", id, statusURL)

	for attempt := 1; attempt <= t.cfg.PollAttempts; attempt++ {
		if err := t.sleep(ctx, t.cfg.PollInterval); err != nil {
			return nil, err
		}

		var st jobResponse
		if err := t.do(ctx, cred, resty.MethodGet, statusURL, nil, &st); err != nil {
			return nil, err
		}

		req.progress(Progress{State: JobPolling, RemoteID: id, Attempt: attempt, Status: st.Status})
		t.log.Debugf("Remote job %s: %s (attempt %d/%d)", id, st.Status, attempt, t.cfg.PollAttempts)

		switch st.Status {
		case StatusInQueue, StatusInProgress:
			continue
		case StatusCompleted:
			t.log.Infof("Remote job %s completed after %d polls", id, attempt)
			return decodeOutput(st.Output)
		case StatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrRemoteJobFailed, errorText(st.Error))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, st.Status)
		}
	}

	return nil, fmt.Errorf("%w: job %s still running after %d polls", ErrRemoteTimeout, id, t.cfg.PollAttempts)
}

func (t *RemoteTranscriber) do(ctx context.Context, cred, method, target string, body any, out *jobResponse) error {
	r := t.client.R().
		SetContext(ctx).
		SetAuthToken(cred).
		SetResult(out)
	if body != nil {
		r.SetBody(body)
	}

	resp, err := r.Execute(method, target)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrRemoteRequestFailed, method, target, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s %s: HTTP %d: %s", ErrRemoteRequestFailed, method, target, resp.StatusCode(), snippet(resp.String()))
	}
	// resty skips result decoding for non-JSON content types.
	if out.ID == "" && out.Status == "" && len(out.Output) == 0 && len(out.Error) == 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrRemoteRequestFailed, err)
		}
	}
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// errorText renders an error payload that may be a string or an object.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type whisperxSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

type remoteOutput struct {
	Language    string            `json:"language"`
	NumSpeakers int               `json:"num_speakers"`
	Dialogue    []Turn            `json:"dialogue"`
	Segments    []whisperxSegment `json:"segments"`
	Error       json.RawMessage   `json:"error"`
}

// decodeOutput reads the dialogue shape, falling back to raw whisperx
// segments when the service returns an unconverted result.
func decodeOutput(raw json.RawMessage) (*Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: completed without output", ErrRemoteJobFailed)
	}

	var out remoteOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode output: %v", ErrRemoteRequestFailed, err)
	}

	d := &Dialogue{
		Language:    out.Language,
		NumSpeakers: out.NumSpeakers,
		Turns:       out.Dialogue,
	}
	if len(bytes.TrimSpace(out.Error)) > 0 && !bytes.Equal(bytes.TrimSpace(out.Error), []byte("null")) {
		d.Error = errorText(out.Error)
	}
	if d.Turns == nil && len(out.Segments) > 0 {
		d.Turns = make([]Turn, 0, len(out.Segments))
		for _, s := range out.Segments {
			d.Turns = append(d.Turns, Turn{
				Speaker: s.Speaker,
				Start:   s.Start,
				End:     s.End,
				Text:    strings.TrimSpace(s.Text),
			})
		}
	}
	sort.SliceStable(d.Turns, func(i, j int) bool {
		return d.Turns[i].Start < d.Turns[j].Start
	})
	if d.NumSpeakers <= 0 && len(d.Turns) > 0 {
		d.NumSpeakers = countSpeakers(d.Turns)
	}

	return &Result{Kind: ResultDialogue, Dialogue: d}, nil
}
