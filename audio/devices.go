package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrDeviceUnavailable is returned when the default sink or source cannot be
// resolved.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// DefaultSource is the PulseAudio name of the default capture source.
const DefaultSource = "default"

// Devices names the two capture inputs mixed into a recording.
type Devices struct {
	// Monitor is the monitor source of the active playback sink (system audio).
	Monitor string `json:"monitor"`
	// Source is the microphone capture source.
	Source string `json:"source"`
}

// DeviceResolver resolves the current system audio endpoints.
type DeviceResolver interface {
	Resolve(ctx context.Context) (Devices, error)
}

// PulseResolver resolves devices through pactl.
type PulseResolver struct {
	// Pactl overrides the pactl binary path.
	Pactl   string
	Timeout time.Duration
}

// Resolve asks pactl for the default sink and source.
func (r *PulseResolver) Resolve(ctx context.Context) (Devices, error) {
	bin, err := FindBinary("pactl", r.Pactl)
	if err != nil {
		return Devices{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sink, err := pactlQuery(ctx, bin, "get-default-sink")
	if err != nil {
		return Devices{}, fmt.Errorf("%w: default sink: %v", ErrDeviceUnavailable, err)
	}
	if sink == "" {
		return Devices{}, fmt.Errorf("%w: no default sink", ErrDeviceUnavailable)
	}

	// Older pactl builds lack get-default-source; the "default" alias still works.
	source, err := pactlQuery(ctx, bin, "get-default-source")
	if err != nil || source == "" {
		source = DefaultSource
	}

	return Devices{Monitor: sink + ".monitor", Source: source}, nil
}

func pactlQuery(ctx context.Context, bin, verb string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, verb).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// StaticResolver always returns the same devices.
type StaticResolver Devices

func (r StaticResolver) Resolve(context.Context) (Devices, error) {
	if r.Monitor == "" || r.Source == "" {
		return Devices{}, ErrDeviceUnavailable
	}
	return Devices(r), nil
}
