package segment

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pi2rec/vadrec/internal/util"
)

// Finisher runs post-processing off the capture loop so a completed segment
// never delays the next block read. Jobs queued before Stop are drained
// within the stop window, so the final segment's stereo artifact is written
// before the process exits.
type Finisher struct {
	proc   *Processor
	onDone func(Artifact)

	queue  chan Completed
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFinisher starts the post-processing worker. onDone receives every
// successfully processed artifact.
func NewFinisher(proc *Processor, onDone func(Artifact)) *Finisher {
	f := &Finisher{
		proc:   proc,
		onDone: onDone,
		queue:  make(chan Completed, 16),
		stopCh: make(chan struct{}),
	}
	f.wg.Add(1)
	go f.worker()
	return f
}

// Enqueue queues a completed segment for processing without blocking. It
// reports whether the job was accepted; a full queue drops the job.
func (f *Finisher) Enqueue(c Completed) bool {
	select {
	case f.queue <- c:
		return true
	default:
		slog.Warn("processing queue full, dropping segment", "file", filepath.Base(c.RawPath))
		return false
	}
}

// Stop signals the worker and waits up to drainTimeout for queued segments.
// A job still running after the timeout is abandoned.
func (f *Finisher) Stop(drainTimeout time.Duration) {
	close(f.stopCh)

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		slog.Warn("processing worker did not drain in time, abandoning")
	}
}

// worker processes the queue, draining remaining items on shutdown.
func (f *Finisher) worker() {
	defer f.wg.Done()

	for {
		select {
		case <-f.stopCh:
			for {
				select {
				case c := <-f.queue:
					f.process(c)
				default:
					return
				}
			}
		case c := <-f.queue:
			f.process(c)
		}
	}
}

func (f *Finisher) process(c Completed) {
	artifact, err := f.proc.Process(c.RawPath)
	if err != nil {
		slog.Error("post-processing failed", "file", c.RawPath, "error", err)
		return
	}

	slog.Info("recording ready",
		"file", artifact.Path,
		"normalize", artifact.Normalize,
		"duration", util.FormatDuration(c.Duration.Milliseconds()))

	if f.onDone != nil {
		f.onDone(*artifact)
	}
}
