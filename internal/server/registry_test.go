package server

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestRegistryRegisterAndSnapshot(t *testing.T) {
	r := startRegistry(t)
	c := testCanvas(t)

	a, _ := newPipeSession(t, c, r, "10.0.0.1:1000")
	b, _ := newPipeSession(t, c, r, "10.0.0.2:1000")
	for _, s := range []*Session{a, b} {
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s) failed: %v", s.Addr, err)
		}
	}

	if n := r.Len(); n != 2 {
		t.Fatalf("Len() = %d, expected 2", n)
	}
	got := map[*Session]bool{}
	for _, s := range r.Snapshot() {
		got[s] = true
	}
	if !got[a] || !got[b] || len(got) != 2 {
		t.Errorf("Snapshot() = %v, expected both sessions", got)
	}

	r.Unregister(a)
	snap := r.Snapshot()
	if len(snap) != 1 || snap[0] != b {
		t.Errorf("Snapshot() after Unregister = %v, expected only %s", snap, b.Addr)
	}
}

func TestRegistryEvictsSameAddress(t *testing.T) {
	r := startRegistry(t)
	c := testCanvas(t)

	old, oldClient := newPipeSession(t, c, r, "10.0.0.1:1000")
	if err := r.Register(old); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	next, _ := newPipeSession(t, c, r, "10.0.0.1:1000")
	if err := r.Register(next); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := old.ctx.Err(); err == nil {
		t.Error("evicted session was not cancelled")
	}
	oldClient.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := oldClient.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("read from evicted peer returned %v, expected EOF", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0] != next {
		t.Fatalf("Snapshot() = %v, expected only the new session", snap)
	}

	// The evicted session removing itself must not drop its replacement.
	r.Unregister(old)
	if snap := r.Snapshot(); len(snap) != 1 || snap[0] != next {
		t.Errorf("late Unregister removed the new session: %v", snap)
	}
}

func TestRegistryEvictionWakesServingSession(t *testing.T) {
	r := startRegistry(t)
	c := testCanvas(t)

	old, oldClient := newPipeSession(t, c, r, "10.0.0.1:1000")
	register(t, r, old)
	go old.Serve()

	// Park the old session in Acquire.
	if _, err := oldClient.Write([]byte("PX 1 1 ffffff\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	next, _ := newPipeSession(t, c, r, "10.0.0.1:1000")
	register(t, r, next)
	waitDone(t, old)

	if st := old.State(); st != StateDisconnected {
		t.Errorf("evicted session state = %v, expected %v", st, StateDisconnected)
	}
	if snap := r.Snapshot(); len(snap) != 1 || snap[0] != next {
		t.Errorf("Snapshot() = %v, expected only the new session", snap)
	}
	if px, _ := c.Pixel(1, 1); px.R != 0 {
		t.Error("evicted session drew without a token")
	}
}

func TestRegistryShutdownClosesSessions(t *testing.T) {
	r := NewRegistry(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(finished)
	}()

	c := testCanvas(t)
	s, _ := newPipeSession(t, c, r, "10.0.0.1:1000")
	register(t, r, s)
	cancel()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.ctx.Err() == nil {
		t.Error("session not closed on registry shutdown")
	}

	late, _ := newPipeSession(t, c, r, "10.0.0.2:1000")
	if err := r.Register(late); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Register after shutdown returned %v, expected ErrRegistryClosed", err)
	}
	if n := r.Len(); n != 0 {
		t.Errorf("Len() after shutdown = %d", n)
	}
	if snap := r.Snapshot(); snap != nil {
		t.Errorf("Snapshot() after shutdown = %v", snap)
	}
	r.Unregister(s)
}
