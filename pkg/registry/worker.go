package registry

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/james-see/skipper/pkg/program"
)

// Registrar fetches the staged program for a track
type Registrar interface {
	Register(ctx context.Context, uuid, track string) ([]byte, error)
}

// Target is the engine a worker loads programs into
type Target interface {
	HasProgram() bool
	TrackName() string
	LoadProgram(payload []byte) (program.LoadReport, error)
}

// Worker registers an instance in the background until it obtains a
// program. The network call never runs while the target is locked; the
// program is committed through Target.LoadProgram afterwards.
type Worker struct {
	registrar Registrar
	target    Target
	uuid      string
	attempts  int
	interval  time.Duration
	log       *logrus.Entry
}

// NewWorker creates a worker making at most attempts tries, interval apart
func NewWorker(r Registrar, target Target, uuid string, attempts int, interval time.Duration, logger *logrus.Logger) *Worker {
	if attempts < 1 {
		attempts = 1
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		registrar: r,
		target:    target,
		uuid:      uuid,
		attempts:  attempts,
		interval:  interval,
		log: logger.WithFields(logrus.Fields{
			"component": "registry",
			"uuid":      uuid,
		}),
	}
}

// Run makes registration attempts until a program is loaded, the target
// already has one, attempts run out or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(w.interval), 1)

	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if w.target.HasProgram() {
			w.log.Debug("program already loaded, registration skipped")
			return nil
		}
		track := w.target.TrackName()
		if track == "" {
			continue
		}

		log := w.log.WithFields(logrus.Fields{"track": track, "attempt": attempt})
		payload, err := w.registrar.Register(ctx, w.uuid, track)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrNoProgram) {
				log.Debug("no program staged")
			} else {
				log.WithError(err).Debug("registration failed")
			}
			continue
		}

		report, err := w.target.LoadProgram(payload)
		if err != nil {
			log.WithError(err).Warn("registry sent an unusable program")
			continue
		}
		log.WithField("notes", report.Notes).Info("registered")
		return nil
	}

	w.log.WithField("attempts", w.attempts).Info("registration gave up")
	return ErrAttemptsExhausted
}

// Start runs the worker on its own goroutine. The channel receives the
// result of Run.
func (w *Worker) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()
	return done
}
