package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pixelflut/internal/canvas"
)

// maxLineLength bounds a single command line. Longer lines are discarded.
const maxLineLength = 4096

type State int32

const (
	StateConnected State = iota
	StateServing
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateServing:
		return "serving"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Session serves one client connection.
type Session struct {
	ID          uuid.UUID
	Addr        string
	ConnectedAt time.Time

	conn     net.Conn
	canvas   *canvas.Canvas
	registry *Registry
	limiter  *RateLimiter
	outbox   *Outbox
	log      *logrus.Entry
	errLog   *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
	state     atomic.Int32
	pixels    atomic.Uint64
}

// NewSession binds conn to the canvas. The session is keyed in the registry
// by the connection's remote address.
func NewSession(conn net.Conn, c *canvas.Canvas, r *Registry, log *logrus.Entry) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.New(),
		Addr:        conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
		canvas:      c,
		registry:    r,
		limiter:     NewRateLimiter(PixelsPerTick),
		outbox:      NewOutbox(OutboxSize),
		errLog:      rate.NewLimiter(rate.Every(time.Second), 5),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	s.log = log.WithFields(logrus.Fields{"addr": s.Addr, "session": s.ID.String()})
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

// Limiter returns the session's draw allowance.
func (s *Session) Limiter() *RateLimiter { return s.limiter }

// Pixels returns the number of PX commands applied to the canvas.
func (s *Session) Pixels() uint64 { return s.pixels.Load() }

// Done is closed once Serve has finished cleaning up.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send queues a line for the client. It never blocks.
func (s *Session) Send(line string) {
	s.outbox.Push(strings.TrimSpace(line))
}

// Close cancels the session and closes its connection, which unblocks a
// pending read, write or Acquire. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// Serve runs the protocol loop until the client goes away or the session is
// closed. Pending output is written before each read, so a client that does
// not read its responses stops being served.
func (s *Session) Serve() {
	s.state.Store(int32(StateServing))
	s.log.Info("CONNECT")
	defer s.disconnect()

	r := bufio.NewReaderSize(s.conn, maxLineLength)
	w := bufio.NewWriter(s.conn)
	for {
		if err := s.flush(w); err != nil {
			s.connectionError(err)
			return
		}

		line, err := readLine(r)
		if line != "" {
			if herr := s.handle(line); herr != nil {
				return
			}
		}
		if errors.Is(err, errLineTooLong) {
			s.protocolError("", err)
			continue
		}
		if err != nil {
			s.connectionError(err)
			return
		}
	}
}

func (s *Session) disconnect() {
	s.state.Store(int32(StateDisconnected))
	s.Close()
	s.registry.Unregister(s)
	s.log.WithFields(logrus.Fields{
		"duration": time.Since(s.ConnectedAt).Round(time.Millisecond),
		"pixels":   s.pixels.Load(),
	}).Info("DISCONNECT")
	close(s.done)
}

func (s *Session) flush(w *bufio.Writer) error {
	for _, line := range s.outbox.Drain() {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// handle dispatches one command. It only fails when the session is closing.
func (s *Session) handle(line string) error {
	verb, args := splitCommand(line)
	switch verb {
	case cmdSize:
		s.Send(formatSize(s.canvas.Size()))

	case cmdPixel:
		if err := s.limiter.Acquire(s.ctx); err != nil {
			return err
		}
		x, y, col, err := parsePixel(args)
		if err != nil {
			s.protocolError(line, err)
			return nil
		}
		if err := s.canvas.SetPixel(x, y, col); err != nil {
			s.protocolError(line, err)
			return nil
		}
		s.pixels.Add(1)
	}
	return nil
}

func (s *Session) protocolError(line string, err error) {
	if !s.errLog.Allow() {
		return
	}
	s.log.WithError(&ProtocolError{Line: strings.TrimSpace(line), Err: err}).Debug("discarding command")
}

func (s *Session) connectionError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	s.log.WithError(&ConnectionError{Addr: s.Addr, Err: err}).Warn("connection failed")
}

// readLine reads one newline terminated line. A final line without a newline
// is returned together with io.EOF. Lines that do not fit the reader's buffer
// are skipped and reported as errLineTooLong.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", errLineTooLong
	}
	return string(line), err
}
