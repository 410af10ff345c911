package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pixelflut/internal/canvas"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l)
}

func testCanvas(t *testing.T) *canvas.Canvas {
	t.Helper()
	c, err := canvas.New(640, 480)
	if err != nil {
		t.Fatalf("canvas.New failed: %v", err)
	}
	return c
}

func startRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)
	return r
}

func register(t *testing.T, r *Registry, s *Session) {
	t.Helper()
	if err := r.Register(s); err != nil {
		t.Fatalf("Register(%s) failed: %v", s.Addr, err)
	}
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// pipeConn is one end of a net.Pipe with a chosen remote address.
type pipeConn struct {
	net.Conn
	addr fakeAddr
}

func (c pipeConn) RemoteAddr() net.Addr { return c.addr }

// newPipeSession returns an unserved session and the client end of its
// connection.
func newPipeSession(t *testing.T, c *canvas.Canvas, r *Registry, addr string) (*Session, net.Conn) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() { clientEnd.Close() })
	s := NewSession(pipeConn{Conn: serverEnd, addr: fakeAddr(addr)}, c, r, testLogger())
	return s, clientEnd
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish", s.Addr)
	}
}
