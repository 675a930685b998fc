package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalTranscriber runs the whisper command-line recognizer on the file.
type LocalTranscriber struct {
	// Path overrides the recognizer binary. Defaults to "whisper".
	Path string

	log *zap.SugaredLogger
}

// NewLocalTranscriber creates a transcriber using the recognizer at path.
func NewLocalTranscriber(path string, log *zap.SugaredLogger) *LocalTranscriber {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LocalTranscriber{Path: path, log: log}
}

func (l *LocalTranscriber) binary() string {
	if l.Path != "" {
		return l.Path
	}
	return "whisper"
}

// Check verifies that the recognizer can be invoked.
func (l *LocalTranscriber) Check(ctx context.Context) (string, error) {
	bin, err := exec.LookPath(l.binary())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognizerNotFound, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, bin, "--help").Run(); err != nil {
		return "", fmt.Errorf("%w: %s --help: %v", ErrRecognizerNotFound, bin, err)
	}
	return bin, nil
}

// TranscriptPath returns where the recognizer writes the transcript of audioPath.
func TranscriptPath(audioPath string) string {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(filepath.Dir(audioPath), stem+".txt")
}

// Transcribe runs the recognizer and reads the transcript it leaves next to
// the input. Output is streamed line by line while the recognizer runs.
func (l *LocalTranscriber) Transcribe(ctx context.Context, req Request) (*Result, error) {
	bin, err := l.Check(ctx)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	if !KnownModel(model) {
		l.log.Warnf("Unknown recognizer model %q, passing through", model)
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	dir := filepath.Dir(req.Path)
	cmd := exec.CommandContext(ctx, bin, req.Path,
		"--model", model,
		"--language", lang,
		"--output_format", "txt",
		"--output_dir", dir,
	)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w

	out := TranscriptPath(req.Path)
	before, statErr := os.Stat(out)
	if statErr != nil {
		before = nil
	}

	l.log.Infof("Transcribing %s (model=%s language=%s)", filepath.Base(req.Path), model, lang)
	started := time.Now()

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("%w: %v", ErrRecognizerNotFound, err)
	}
	w.Close()

	l.stream(r, req)
	r.Close()
	runErr := cmd.Wait()

	elapsed := time.Since(started).Truncate(time.Second)
	if !rewritten(out, before) {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %s not rewritten (%v)", ErrRecognizerOutputMissing, out, runErr)
		}
		return nil, fmt.Errorf("%w: %s not rewritten", ErrRecognizerOutputMissing, out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %s (%v)", ErrRecognizerOutputMissing, out, runErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrRecognizerOutputMissing, out)
	}
	if runErr != nil {
		l.log.Warnf("Recognizer exited with %v but wrote %s", runErr, out)
	}

	l.log.Infof("Transcription finished in %s: %s (%d bytes)", elapsed, out, len(data))
	return &Result{
		Kind:           ResultPlain,
		Text:           string(data),
		TranscriptPath: out,
	}, nil
}

// rewritten reports whether path exists and differs from the file seen
// before the run. A transcript left over from an earlier run does not count.
func rewritten(path string, before os.FileInfo) bool {
	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	if before == nil {
		return true
	}
	return !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size()
}

// stream forwards recognizer output as it arrives. Progress bars redraw with
// carriage returns, so both \r and \n end a line.
func (l *LocalTranscriber) stream(r io.Reader, req Request) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.log.Info(line)
		req.progress(Progress{Line: line})
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		l.log.Debugf("Recognizer output: %v", err)
		// Keep draining so the recognizer never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
