// Package snapshot saves numbered PNG frames of the canvas on a cron
// schedule, producing a history of the wall.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"pixelflut/internal/canvas"
)

type Recorder struct {
	canvas *canvas.Canvas
	dir    string
	log    *logrus.Entry

	mu   sync.Mutex
	seq  int
	cron *cron.Cron
}

func New(c *canvas.Canvas, dir string, log *logrus.Entry) *Recorder {
	return &Recorder{canvas: c, dir: dir, log: log}
}

// Save writes the next hist%06d.png frame and returns its path.
func (r *Recorder) Save() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating snapshot dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("hist%06d.png", r.seq))
	if err := imaging.Save(r.canvas.Image(), path); err != nil {
		return "", fmt.Errorf("error saving snapshot: %w", err)
	}
	r.seq++
	return path, nil
}

// Start schedules Save according to a cron schedule, e.g. "@every 1m" or "*/5 * * * *".
func (r *Recorder) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.save); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("snapshots already scheduled")
	}
	r.cron = c
	c.Start()
	r.log.Infof("saving snapshots to %s (%s)", r.dir, schedule)
	return nil
}

// Stop cancels the schedule and waits for a running save to finish.
func (r *Recorder) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (r *Recorder) save() {
	path, err := r.Save()
	if err != nil {
		r.log.WithError(err).Warn("snapshot failed")
		return
	}
	r.log.WithField("path", path).Debug("snapshot saved")
}
