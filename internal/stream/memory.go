package stream

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-process Log. Used by tests and --use-memory runs.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string]*memStream
}

type memStream struct {
	entries []Entry
	groups  map[string]*memGroup
	notify  chan struct{} // closed and replaced on every publish
}

type memGroup struct {
	next    int               // index of next undelivered entry
	pending map[string]string // entry id -> consumer
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{streams: make(map[string]*memStream)}
}

// Compile-time interface check.
var _ Log = (*MemoryLog)(nil)

func (l *MemoryLog) stream(name string, create bool) *memStream {
	s, ok := l.streams[name]
	if !ok && create {
		s = &memStream{groups: make(map[string]*memGroup), notify: make(chan struct{})}
		l.streams[name] = s
	}
	return s
}

// CreateGroup creates a group. start is StartNewOnly or "0" (from the beginning).
func (l *MemoryLog) CreateGroup(_ context.Context, stream, group, start string, mkStream bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(stream, mkStream)
	if s == nil {
		return fmt.Errorf("create group %s: stream %s does not exist", group, stream)
	}
	if _, exists := s.groups[group]; exists {
		return nil
	}

	next := 0
	if start == StartNewOnly {
		next = len(s.entries)
	}
	s.groups[group] = &memGroup{next: next, pending: make(map[string]string)}
	return nil
}

// ReadGroup delivers up to count new entries, waiting up to block for the first one.
func (l *MemoryLog) ReadGroup(ctx context.Context, group, consumer, stream string, block time.Duration, count int) ([]Entry, error) {
	if count <= 0 {
		count = 1
	}

	timer := time.NewTimer(block)
	defer timer.Stop()

	for {
		l.mu.Lock()
		s := l.stream(stream, false)
		if s == nil {
			l.mu.Unlock()
			return nil, ErrNoGroup
		}
		g, ok := s.groups[group]
		if !ok {
			l.mu.Unlock()
			return nil, ErrNoGroup
		}

		if g.next < len(s.entries) {
			end := g.next + count
			if end > len(s.entries) {
				end = len(s.entries)
			}
			out := make([]Entry, 0, end-g.next)
			for _, e := range s.entries[g.next:end] {
				g.pending[e.ID] = consumer
				out = append(out, copyEntry(e))
			}
			g.next = end
			l.mu.Unlock()
			return out, nil
		}

		notify := s.notify
		l.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ack removes ids from the group's pending set. Unknown ids are ignored.
func (l *MemoryLog) Ack(_ context.Context, stream, group string, ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(stream, false)
	if s == nil {
		return ErrNoGroup
	}
	g, ok := s.groups[group]
	if !ok {
		return ErrNoGroup
	}
	for _, id := range ids {
		delete(g.pending, id)
	}
	return nil
}

// Publish appends values and wakes blocked readers.
func (l *MemoryLog) Publish(_ context.Context, stream string, values map[string]string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(stream, true)
	id := fmt.Sprintf("%d-0", len(s.entries)+1)
	s.entries = append(s.entries, copyEntry(Entry{ID: id, Values: values}))

	close(s.notify)
	s.notify = make(chan struct{})
	return id, nil
}

// Pending returns the ids delivered to group but not yet acknowledged.
func (l *MemoryLog) Pending(stream, group string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(stream, false)
	if s == nil {
		return nil
	}
	g, ok := s.groups[group]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of entries ever published to stream.
func (l *MemoryLog) Len(stream string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.stream(stream, false); s != nil {
		return len(s.entries)
	}
	return 0
}

func copyEntry(e Entry) Entry {
	values := make(map[string]string, len(e.Values))
	for k, v := range e.Values {
		values[k] = v
	}
	return Entry{ID: e.ID, Values: values}
}
