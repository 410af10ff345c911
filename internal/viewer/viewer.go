// Package viewer serves the canvas over HTTP: PNG snapshots, a websocket
// stream of frames, and the resize and clear controls of a display.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pixelflut/internal/canvas"
)

const maxScale = 8

// ClientCounter reports the number of connected pixelflut clients.
type ClientCounter interface {
	Len() int
}

type Options struct {
	// FPS caps the websocket frame rate.
	FPS int
	// AllowedOrigin is the only Origin accepted for websockets and CORS.
	// "*" accepts any origin.
	AllowedOrigin string
}

type Viewer struct {
	canvas   *canvas.Canvas
	clients  ClientCounter
	opts     Options
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

func New(c *canvas.Canvas, clients ClientCounter, opts Options, log *logrus.Entry) *Viewer {
	if opts.FPS <= 0 {
		opts.FPS = 10
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	v := &Viewer{canvas: c, clients: clients, opts: opts, log: log}
	v.upgrader = websocket.Upgrader{
		ReadBufferSize:  64,
		WriteBufferSize: 10240,
		CheckOrigin: func(r *http.Request) bool {
			return v.opts.AllowedOrigin == "*" || r.Header.Get("Origin") == v.opts.AllowedOrigin
		},
	}
	return v
}

func (v *Viewer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(v.corsMiddleware)

	r.Get("/canvas.png", v.handleGetPixels)
	r.Get("/size", v.handleGetSize)
	r.Get("/ws", v.handleConnections)
	r.Post("/resize", v.handleResize)
	r.Post("/clear", v.handleClear)
	return r
}

// ListenAndServe serves the viewer on addr until ctx ends.
func (v *Viewer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: v.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	v.log.Infof("viewer listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (v *Viewer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", v.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (v *Viewer) sizeMessage() SizeMessage {
	w, h := v.canvas.Size()
	return SizeMessage{Type: "size", Width: w, Height: h, ClientCount: v.clients.Len()}
}

func (v *Viewer) handleGetSize(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, v.sizeMessage())
}

func (v *Viewer) handleGetPixels(rw http.ResponseWriter, req *http.Request) {
	scale := 1
	if s := req.URL.Query().Get("scale"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxScale {
			writeJSON(rw, http.StatusBadRequest, errorMessage{Error: fmt.Sprintf("scale must be between 1 and %d", maxScale)})
			return
		}
		scale = n
	}

	rw.Header().Set("Content-Type", "image/png")
	rw.Header().Set("Cache-Control", "no-store")
	if err := imaging.Encode(rw, frame(v.canvas, scale), imaging.PNG); err != nil {
		v.log.WithError(err).Warn("error encoding canvas")
	}
}

func (v *Viewer) handleResize(rw http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	w, errW := strconv.Atoi(q.Get("w"))
	h, errH := strconv.Atoi(q.Get("h"))
	if errW != nil || errH != nil {
		writeJSON(rw, http.StatusBadRequest, errorMessage{Error: "w and h must be integers"})
		return
	}
	if err := v.canvas.Resize(w, h); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorMessage{Error: err.Error()})
		return
	}
	v.log.Infof("canvas resized to %dx%d", w, h)
	writeJSON(rw, http.StatusOK, v.sizeMessage())
}

func (v *Viewer) handleClear(rw http.ResponseWriter, req *http.Request) {
	v.canvas.Clear()
	v.log.Info("canvas cleared")
	rw.WriteHeader(http.StatusNoContent)
}

// handleConnections streams the canvas to a websocket as PNG frames, sending
// a size message first and again after every resize.
func (v *Viewer) handleConnections(rw http.ResponseWriter, req *http.Request) {
	conn, err := v.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		v.log.WithError(err).Warn("error upgrading connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	// Viewers never send anything; reading only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(v.opts.FPS), 1)
	var last SizeMessage
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		if msg := v.sizeMessage(); msg.Width != last.Width || msg.Height != last.Height {
			if err := conn.WriteJSON(msg); err != nil {
				v.logWriteError(err)
				return
			}
			last = msg
		}

		w, err := conn.NextWriter(websocket.BinaryMessage)
		if err != nil {
			v.logWriteError(err)
			return
		}
		if err := imaging.Encode(w, v.canvas.Image(), imaging.PNG); err != nil {
			v.log.WithError(err).Warn("error encoding frame")
			return
		}
		if err := w.Close(); err != nil {
			v.logWriteError(err)
			return
		}
	}
}

func (v *Viewer) logWriteError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		v.log.WithError(err).Debug("error sending frame")
	}
}

func frame(c *canvas.Canvas, scale int) image.Image {
	img := c.Image()
	if scale == 1 {
		return img
	}
	b := img.Bounds()
	return imaging.Resize(img, b.Dx()*scale, b.Dy()*scale, imaging.NearestNeighbor)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
