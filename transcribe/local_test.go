package transcribe

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// fakeRecognizer writes a whisper-like script. $1 is the audio path and the
// value after --output_dir is the transcript directory.
func fakeRecognizer(t *testing.T, body string) string {
	t.Helper()
	requireShell(t)
	path := filepath.Join(t.TempDir(), "whisper")
	script := `#!/bin/sh
if [ "$1" = "--help" ]; then echo "usage: whisper"; exit 0; fi
AUDIO="$1"
ARGS="$*"
OUTDIR=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_dir" ]; then OUTDIR="$2"; fi
  shift
done
STEM=$(basename "$AUDIO")
STEM="${STEM%.*}"
` + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestTranscriptPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/rec", "interview_1.txt"), TranscriptPath("/tmp/rec/interview_1.mp3"))
	assert.Equal(t, filepath.Join("/a", "b.c.txt"), TranscriptPath("/a/b.c.wav"))
}

func TestLocal_WritesTranscriptAndStreamsOutput(t *testing.T) {
	bin := fakeRecognizer(t, `echo "args: $ARGS"
echo "progress 50%" 1>&2
printf 'hello world\n' > "$OUTDIR/$STEM.txt"`)
	audio := audioFile(t)

	var mu sync.Mutex
	var lines []string
	lt := NewLocalTranscriber(bin, nil)
	res, err := lt.Transcribe(context.Background(), Request{
		Path:     audio,
		Language: "ru",
		Model:    "small",
		OnProgress: func(p Progress) {
			mu.Lock()
			lines = append(lines, p.Line)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultPlain, res.Kind)
	assert.Equal(t, "hello world\n", res.Text)
	assert.Equal(t, TranscriptPath(audio), res.TranscriptPath)

	require.Len(t, lines, 2)
	assert.Equal(t, "args: "+audio+" --model small --language ru --output_format txt --output_dir "+filepath.Dir(audio), lines[0])
	assert.Equal(t, "progress 50%", lines[1])
}

func TestLocal_OutputMissing(t *testing.T) {
	bin := fakeRecognizer(t, `echo "nothing to do"`)
	_, err := NewLocalTranscriber(bin, nil).Transcribe(context.Background(), Request{Path: audioFile(t)})
	assert.ErrorIs(t, err, ErrRecognizerOutputMissing)
}

func TestLocal_NonZeroExitWithTranscriptSucceeds(t *testing.T) {
	bin := fakeRecognizer(t, `printf 'partial' > "$OUTDIR/$STEM.txt"
exit 3`)
	res, err := NewLocalTranscriber(bin, nil).Transcribe(context.Background(), Request{Path: audioFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "partial", res.Text)
}

func TestLocal_NonZeroExitWithoutTranscript(t *testing.T) {
	bin := fakeRecognizer(t, `exit 2`)
	_, err := NewLocalTranscriber(bin, nil).Transcribe(context.Background(), Request{Path: audioFile(t)})
	require.ErrorIs(t, err, ErrRecognizerOutputMissing)
	assert.Contains(t, err.Error(), "exit status 2")
}

func TestLocal_StaleTranscriptIgnored(t *testing.T) {
	bin := fakeRecognizer(t, `exit 2`)
	audio := audioFile(t)
	stale := TranscriptPath(audio)
	require.NoError(t, os.WriteFile(stale, []byte("Error: old remote failure\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	res, err := NewLocalTranscriber(bin, nil).Transcribe(context.Background(), Request{Path: audio})
	require.ErrorIs(t, err, ErrRecognizerOutputMissing)
	assert.Nil(t, res)
}

func TestLocal_ExistingTranscriptOverwritten(t *testing.T) {
	bin := fakeRecognizer(t, `printf 'fresh text' > "$OUTDIR/$STEM.txt"`)
	audio := audioFile(t)
	stale := TranscriptPath(audio)
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	res, err := NewLocalTranscriber(bin, nil).Transcribe(context.Background(), Request{Path: audio})
	require.NoError(t, err)
	assert.Equal(t, "fresh text", res.Text)
}

func TestLocal_RecognizerNotFound(t *testing.T) {
	lt := NewLocalTranscriber(filepath.Join(t.TempDir(), "no-whisper"), nil)
	_, err := lt.Transcribe(context.Background(), Request{Path: audioFile(t)})
	assert.ErrorIs(t, err, ErrRecognizerNotFound)
}

func TestLocal_HelpFails(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "whisper")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755))

	_, err := NewLocalTranscriber(path, nil).Check(context.Background())
	assert.ErrorIs(t, err, ErrRecognizerNotFound)
}

func TestScanLines(t *testing.T) {
	adv, tok, err := scanLines([]byte("10%\r20%\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 4, adv)
	assert.Equal(t, "10%", string(tok))

	adv, tok, _ = scanLines([]byte("tail"), true)
	assert.Equal(t, 4, adv)
	assert.Equal(t, "tail", string(tok))

	adv, tok, _ = scanLines([]byte("partial"), false)
	assert.Zero(t, adv)
	assert.Nil(t, tok)
}

func TestKnownModel(t *testing.T) {
	assert.True(t, KnownModel("medium"))
	assert.True(t, KnownModel("large-v3"))
	assert.False(t, KnownModel("gigantic"))
	assert.Contains(t, Models(), "turbo")
}
