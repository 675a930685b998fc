package transcribe

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const unknownSpeaker = "UNKNOWN"

// FormatDialogue renders a diarized transcript as plain text:
//
//	Language: en
//	Speakers: 2
//
//	SPEAKER_00 [00:00 - 00:05]:
//	hi
//
// Turns are ordered by start time. A dialogue carrying an error renders as a
// single "Error: ..." line.
func FormatDialogue(d *Dialogue) string {
	if d == nil {
		return "Error: empty result\n"
	}
	if d.Error != "" {
		return "Error: " + d.Error + "\n"
	}

	turns := make([]Turn, len(d.Turns))
	copy(turns, d.Turns)
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Start < turns[j].Start
	})

	lang := d.Language
	if lang == "" {
		lang = "unknown"
	}
	speakers := d.NumSpeakers
	if speakers <= 0 {
		speakers = countSpeakers(turns)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", lang)
	fmt.Fprintf(&b, "Speakers: %d\n", speakers)

	for _, t := range turns {
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = unknownSpeaker
		}
		fmt.Fprintf(&b, "\n%s [%s - %s]:\n%s\n", speaker, clock(t.Start), clock(t.End), strings.TrimSpace(t.Text))
	}
	return b.String()
}

// clock renders seconds as MM:SS, truncating fractions. Minutes grow past 99.
func clock(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	if seconds > math.MaxInt32 {
		seconds = math.MaxInt32
	}
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func countSpeakers(turns []Turn) int {
	seen := make(map[string]struct{})
	for _, t := range turns {
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = unknownSpeaker
		}
		seen[speaker] = struct{}{}
	}
	return len(seen)
}
