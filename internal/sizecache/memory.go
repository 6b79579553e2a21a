package sizecache

import (
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// Memory keeps entries for the lifetime of the process.
type Memory struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	memory := &Memory{}
	for i := range memory.shards {
		memory.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return memory
}

func (memory *Memory) shardFor(path string) *shard {
	return memory.shards[xxhash.Sum64String(path)%shardCount]
}

func (memory *Memory) Lookup(path string) (Entry, bool, error) {
	s := memory.shardFor(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[path]
	return entry, ok, nil
}

func (memory *Memory) Store(entry Entry) error {
	s := memory.shardFor(entry.Path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Path] = entry
	return nil
}

func (memory *Memory) Len() int {
	total := 0
	for _, s := range memory.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

func (memory *Memory) Range(prefix string, fn func(Entry) bool) error {
	for _, entry := range memory.snapshot(prefix) {
		if !fn(entry) {
			break
		}
	}
	return nil
}

func (memory *Memory) Prune(prefix string) (int, error) {
	removed := 0
	for _, s := range memory.shards {
		s.mu.Lock()
		for path := range s.entries {
			if within(prefix, path) {
				delete(s.entries, path)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

func (memory *Memory) Flush() error { return nil }

func (memory *Memory) Close() error { return nil }

// snapshot returns a sorted copy of the entries under prefix.
func (memory *Memory) snapshot(prefix string) []Entry {
	var entries []Entry
	for _, s := range memory.shards {
		s.mu.RLock()
		for path, entry := range s.entries {
			if within(prefix, path) {
				entries = append(entries, entry)
			}
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return entries
}

// reset replaces all entries.
func (memory *Memory) reset(entries map[string]Entry) {
	for _, s := range memory.shards {
		s.mu.Lock()
		s.entries = make(map[string]Entry)
		s.mu.Unlock()
	}
	for _, entry := range entries {
		_ = memory.Store(entry)
	}
}
