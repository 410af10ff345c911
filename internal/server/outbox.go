package server

import "sync"

// OutboxSize is the number of pending lines kept per client.
const OutboxSize = 1024

// Outbox is a bounded ring of lines waiting to be written to a client.
// Pushing onto a full outbox silently drops the oldest line.
type Outbox struct {
	mu    sync.Mutex
	lines []string
	head  int
	n     int
}

// NewOutbox keeps up to size lines. A non-positive size falls back to
// OutboxSize.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = OutboxSize
	}
	return &Outbox{lines: make([]string, size)}
}

func (o *Outbox) Push(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tail := (o.head + o.n) % len(o.lines)
	o.lines[tail] = line
	if o.n == len(o.lines) {
		o.head = (o.head + 1) % len(o.lines)
		return
	}
	o.n++
}

// Drain removes and returns every pending line, oldest first.
func (o *Outbox) Drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.n == 0 {
		return nil
	}
	out := make([]string, o.n)
	for i := range out {
		j := (o.head + i) % len(o.lines)
		out[i] = o.lines[j]
		o.lines[j] = ""
	}
	o.head, o.n = 0, 0
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}
