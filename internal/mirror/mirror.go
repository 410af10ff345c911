// Package mirror copies the canvas into redis so that displays running
// elsewhere can render it. The key holds raw RGBA rows, the size key holds
// "WxH". Nothing is ever read back.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"pixelflut/internal/canvas"
)

// Store is the subset of the redis client used by the mirror.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetRange(ctx context.Context, key string, offset int64, value string) *redis.IntCmd
}

type Mirror struct {
	store    Store
	canvas   *canvas.Canvas
	key      string
	interval time.Duration
	log      *logrus.Entry

	last          []byte
	width, height int
}

func New(store Store, c *canvas.Canvas, key string, interval time.Duration, log *logrus.Entry) *Mirror {
	return &Mirror{store: store, canvas: c, key: key, interval: interval, log: log}
}

// NewRedisClient connects to the redis server at addr.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// SizeKey is where the canvas dimensions are stored.
func (m *Mirror) SizeKey() string { return m.key + ":size" }

// Sync writes the rows that changed since the previous call. After a resize,
// or on the first call, the whole canvas is written.
func (m *Mirror) Sync(ctx context.Context) (rows int, err error) {
	img := m.canvas.Image()
	w, h := img.Rect.Dx(), img.Rect.Dy()

	if w != m.width || h != m.height || m.last == nil {
		if err := m.store.Set(ctx, m.key, img.Pix, 0).Err(); err != nil {
			return 0, fmt.Errorf("error writing canvas: %w", err)
		}
		if err := m.store.Set(ctx, m.SizeKey(), fmt.Sprintf("%dx%d", w, h), 0).Err(); err != nil {
			return 0, fmt.Errorf("error writing canvas size: %w", err)
		}
		m.last, m.width, m.height = img.Pix, w, h
		return h, nil
	}

	for y := 0; y < h; y++ {
		lo, hi := y*img.Stride, y*img.Stride+w*4
		row := img.Pix[lo:hi]
		if bytes.Equal(row, m.last[lo:hi]) {
			continue
		}
		if err := m.store.SetRange(ctx, m.key, int64(lo), string(row)).Err(); err != nil {
			return rows, fmt.Errorf("error updating row %d: %w", y, err)
		}
		copy(m.last[lo:hi], row)
		rows++
	}
	return rows, nil
}

// Run syncs on every interval until ctx ends. Failed syncs are logged and
// retried on the next interval with a full write.
func (m *Mirror) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := m.Sync(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.WithError(err).Warn("error mirroring canvas")
				m.last = nil
			}
		}
	}
}
