package domain

import "time"

type NodeType int

const (
	NodeFile NodeType = iota
	NodeDir
)

func (t NodeType) String() string {
	if t == NodeDir {
		return "dir"
	}
	return "file"
}

// Node is a filesystem entry as reported by a walker.
type Node struct {
	Path    string
	Name    string
	Type    NodeType
	OwnSize int64
	ModTime time.Time
	Symlink bool
	// Unknown marks an entry whose metadata could not be read. OwnSize is 0.
	Unknown bool
}

func (node Node) IsDir() bool {
	return node.Type == NodeDir
}

// Entry is one node of an aggregate tree.
type Entry struct {
	Node
	AggregateSize int64
	Partial       bool
	Cancelled     bool
	// Cached is set when the aggregate came from the size cache. Children
	// were not enumerated in that case.
	Cached   bool
	Children []*Entry
}

type ScanStats struct {
	Dirs        int64 `json:"dirs"`
	Files       int64 `json:"files"`
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
	CacheWrites int64 `json:"cacheWrites"`
}

// Result is the outcome of one scan. It is not modified after it is returned.
type Result struct {
	ID        string
	Root      *Entry
	Warnings  []Warning
	Cancelled bool
	Stats     ScanStats
	StartedAt time.Time
	Duration  time.Duration
}

// Partial reports whether any part of the result is incomplete.
func (result *Result) Partial() bool {
	if result == nil || result.Root == nil {
		return false
	}
	return result.Cancelled || result.Root.Partial
}
