package server

import (
	"strconv"
	"testing"
)

func TestOutboxKeepsNewest(t *testing.T) {
	o := NewOutbox(OutboxSize)
	for i := 0; i < 2000; i++ {
		o.Push(strconv.Itoa(i))
	}
	if n := o.Len(); n != OutboxSize {
		t.Fatalf("Len() = %d, expected %d", n, OutboxSize)
	}

	lines := o.Drain()
	if len(lines) != OutboxSize {
		t.Fatalf("Drain returned %d lines, expected %d", len(lines), OutboxSize)
	}
	for i, line := range lines {
		if want := strconv.Itoa(976 + i); line != want {
			t.Fatalf("line %d = %q, expected %q", i, line, want)
		}
	}
	if n := o.Len(); n != 0 {
		t.Errorf("Len() = %d after Drain, expected 0", n)
	}
	if lines := o.Drain(); len(lines) != 0 {
		t.Errorf("second Drain returned %d lines", len(lines))
	}
}

func TestOutboxOrderAcrossDrains(t *testing.T) {
	o := NewOutbox(3)
	o.Push("a")
	o.Push("b")
	if got := o.Drain(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Drain = %q", got)
	}

	for _, s := range []string{"c", "d", "e", "f"} {
		o.Push(s)
	}
	got := o.Drain()
	want := []string{"d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("Drain = %q, expected %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain = %q, expected %q", got, want)
			break
		}
	}
}

func TestOutboxNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		o := NewOutbox(size)
		for i := 0; i < OutboxSize+1; i++ {
			o.Push(strconv.Itoa(i))
		}
		if n := o.Len(); n != OutboxSize {
			t.Errorf("NewOutbox(%d): Len() = %d, expected %d", size, n, OutboxSize)
		}
	}
}
