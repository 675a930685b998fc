package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrRecordingNotFound is returned when a library entry does not exist.
var ErrRecordingNotFound = errors.New("recording not found")

const (
	audioExt      = ".mp3"
	transcriptExt = ".txt"
	metaExt       = ".json"
)

// Recording is one entry of the library: an audio file, its transcript and
// metadata, any of which may be missing.
type Recording struct {
	Name           string        `json:"name"`
	AudioPath      string        `json:"audioPath,omitempty"`
	TranscriptPath string        `json:"transcriptPath,omitempty"`
	StartTime      time.Time     `json:"startTime"`
	Duration       time.Duration `json:"duration,omitempty"`
	Size           int64         `json:"size,omitempty"`
}

// Library reads and maintains the recordings in an output directory.
// Entries are grouped by file stem.
type Library struct {
	Dir string
}

func NewLibrary(dir string) *Library {
	return &Library{Dir: dir}
}

type meta struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Monitor   string     `json:"monitor,omitempty"`
	Source    string     `json:"source,omitempty"`
	Size      int64      `json:"size"`
}

// SaveMeta writes the session metadata next to its recording.
func (l *Library) SaveMeta(s *Session) error {
	data, err := json.MarshalIndent(meta{
		ID:        s.ID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Monitor:   s.Devices.Monitor,
		Source:    s.Devices.Source,
		Size:      s.Size,
	}, "", "  ")
	if err != nil {
		return err
	}
	path := strings.TrimSuffix(s.OutputPath, filepath.Ext(s.OutputPath)) + metaExt
	return os.WriteFile(path, data, 0644)
}

// List returns every recording in the directory, newest first. A missing
// directory is an empty library.
func (l *Library) List() ([]*Recording, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	byName := make(map[string]*Recording)
	get := func(name string) *Recording {
		r, ok := byName[name]
		if !ok {
			r = &Recording{Name: name}
			byName[name] = r
		}
		return r
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		name := strings.TrimSuffix(e.Name(), ext)
		path := filepath.Join(l.Dir, e.Name())

		switch ext {
		case audioExt:
			r := get(name)
			r.AudioPath = path
			if info, err := e.Info(); err == nil {
				r.Size = info.Size()
				if r.StartTime.IsZero() {
					r.StartTime = info.ModTime()
				}
			}
		case transcriptExt:
			r := get(name)
			r.TranscriptPath = path
			if r.StartTime.IsZero() {
				if info, err := e.Info(); err == nil {
					r.StartTime = info.ModTime()
				}
			}
		}
	}

	// Metadata refines entries that have media; stray .json files are ignored.
	for name, r := range byName {
		data, err := os.ReadFile(filepath.Join(l.Dir, name+metaExt))
		if err != nil {
			continue
		}
		var m meta
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		r.StartTime = m.StartTime
		if m.EndTime != nil {
			r.Duration = m.EndTime.Sub(m.StartTime)
		}
	}

	recs := make([]*Recording, 0, len(byName))
	for _, r := range byName {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].StartTime.Equal(recs[j].StartTime) {
			return recs[i].StartTime.After(recs[j].StartTime)
		}
		return recs[i].Name > recs[j].Name
	})
	return recs, nil
}

// Delete removes the audio, transcript and metadata of name.
func (l *Library) Delete(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrRecordingNotFound, name)
	}

	removed := 0
	for _, ext := range []string{audioExt, transcriptExt, metaExt} {
		err := os.Remove(filepath.Join(l.Dir, name+ext))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, name)
	}
	return nil
}
