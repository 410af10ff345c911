package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pixelflut/internal/canvas"
)

// Server accepts pixelflut clients and starts a session for each of them.
type Server struct {
	canvas   *canvas.Canvas
	registry *Registry
	log      *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer(c *canvas.Canvas, r *Registry, log *logrus.Entry) *Server {
	return &Server{
		canvas:   c,
		registry: r,
		log:      log,
	}
}

// Start listens on host:port and accepts connections in the background.
func (srv *Server) Start(host string, port int) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.listener != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("error listening on %s:%d: %w", host, port, err)
	}
	srv.listener = ln
	srv.log.Infof("listening on %s", ln.Addr())

	srv.wg.Add(1)
	go srv.acceptLoop(ln)
	return nil
}

// Addr returns the listening address, or nil before Start.
func (srv *Server) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Stop stops accepting connections. Sessions already running keep going.
func (srv *Server) Stop() error {
	srv.mu.Lock()
	ln := srv.listener
	srv.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	srv.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (srv *Server) acceptLoop(ln net.Listener) {
	defer srv.wg.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			srv.log.WithError(err).Warnf("accept failed; retrying in %v", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		srv.handleConnection(conn)
	}
}

func (srv *Server) handleConnection(conn net.Conn) {
	s := NewSession(conn, srv.canvas, srv.registry, srv.log)
	if err := srv.registry.Register(s); err != nil {
		srv.log.WithError(err).WithField("addr", s.Addr).Warn("error registering client")
		conn.Close()
		return
	}
	go s.Serve()
}
