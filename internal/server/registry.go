package server

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var ErrRegistryClosed = errors.New("registry has exited")

type registration struct {
	session *Session
	rsp     chan error
}

// Registry tracks the active session for every client address. The map is
// owned by the goroutine running Run; everything else talks to it over
// channels.
type Registry struct {
	done       chan struct{}
	register   chan registration
	unregister chan *Session
	snapshots  chan chan []*Session
	numclients chan int

	log *logrus.Entry
}

func NewRegistry(log *logrus.Entry) *Registry {
	return &Registry{
		done:       make(chan struct{}),
		register:   make(chan registration),
		unregister: make(chan *Session),
		snapshots:  make(chan chan []*Session),
		numclients: make(chan int),

		log: log,
	}
}

// Run serves registry requests until ctx ends, then closes every session
// still registered.
func (r *Registry) Run(ctx context.Context) {
	select {
	case <-r.done:
		panic("registry has already been run")
	default:
	}
	defer close(r.done)

	sessions := make(map[string]*Session)

	for {
		select {
		case <-ctx.Done():
			for _, s := range sessions {
				s.Close()
			}
			return

		case reg := <-r.register:
			s := reg.session
			if old := sessions[s.Addr]; old != nil && old != s {
				r.log.WithField("addr", s.Addr).Info("evicting previous session")
				old.Close()
			}
			sessions[s.Addr] = s
			reg.rsp <- nil

		case s := <-r.unregister:
			if cur, ok := sessions[s.Addr]; ok && cur == s {
				delete(sessions, s.Addr)
			}

		case rsp := <-r.snapshots:
			list := make([]*Session, 0, len(sessions))
			for _, s := range sessions {
				list = append(list, s)
			}
			rsp <- list

		case r.numclients <- len(sessions):
		}
	}
}

// Register makes s the session for its address. A session already holding
// that address is closed first.
func (r *Registry) Register(s *Session) error {
	rsp := make(chan error, 1)
	select {
	case <-r.done:
		return ErrRegistryClosed
	case r.register <- registration{session: s, rsp: rsp}:
	}
	return <-rsp
}

// Unregister removes s. It does nothing if s has already been replaced.
func (r *Registry) Unregister(s *Session) {
	select {
	case <-r.done:
	case r.unregister <- s:
	}
}

// Snapshot returns the sessions registered at the time of the call.
func (r *Registry) Snapshot() []*Session {
	rsp := make(chan []*Session, 1)
	select {
	case <-r.done:
		return nil
	case r.snapshots <- rsp:
	}
	return <-rsp
}

func (r *Registry) Len() int {
	select {
	case <-r.done:
		return 0
	case num := <-r.numclients:
		return num
	}
}
