package cli

import (
	"context"

	"interviewrec/events"
	"interviewrec/internal/output"
	"interviewrec/transcribe"
)

// render draws bus events on the terminal until ctx is done or the
// subscription is closed.
func render(ctx context.Context, bus *events.Bus, out *output.Formatter) <-chan struct{} {
	ch, cancel := bus.Subscribe(64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer cancel()

		var (
			elapsed = "00:00:00"
			level   int
			live    bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				switch e.Kind {
				case events.KindTick:
					elapsed, live = e.Elapsed, true
					out.Meter(elapsed, level)
				case events.KindLevel:
					level = e.Level
					if live {
						out.Meter(elapsed, level)
					}
				case events.KindStatus:
					live = e.Status == "Recording"
					out.Status(e.Status)
				case events.KindProgress:
					out.Progress(e.Line)
				case events.KindJobCompleted:
					if job, ok := e.Job.(*transcribe.Job); ok && job.State == transcribe.JobCompleted && job.Result != nil {
						out.TranscribeDone(job.Result.TranscriptPath)
					}
				}
			}
		}
	}()
	return done
}
