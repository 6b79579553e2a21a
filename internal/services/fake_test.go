package services

import (
	"context"
	"io/fs"
	"iter"
	"path/filepath"
	"sync"
	"time"

	"sizescope/internal/domain"
	"sizescope/internal/sizecache"
	"sizescope/internal/walker"
)

var baseTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// fakeFS is an in-memory tree that counts directory listings.
type fakeFS struct {
	mu       sync.Mutex
	nodes    map[string]domain.Node
	children map[string][]string
	listErr  map[string]error
	calls    map[string]int
	delay    time.Duration
	onList   func(path string)
}

var _ walker.Walker = (*fakeFS)(nil)

func newFakeFS() *fakeFS {
	return &fakeFS{
		nodes:    make(map[string]domain.Node),
		children: make(map[string][]string),
		listErr:  make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeFS) add(node domain.Node) *fakeFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	node.Name = filepath.Base(node.Path)
	if node.ModTime.IsZero() {
		node.ModTime = baseTime
	}
	if _, exists := f.nodes[node.Path]; !exists {
		parent := filepath.Dir(node.Path)
		if parent != node.Path {
			f.children[parent] = append(f.children[parent], node.Path)
		}
	}
	f.nodes[node.Path] = node
	return f
}

func (f *fakeFS) dir(path string) *fakeFS {
	return f.add(domain.Node{Path: path, Type: domain.NodeDir})
}

func (f *fakeFS) file(path string, size int64) *fakeFS {
	return f.add(domain.Node{Path: path, Type: domain.NodeFile, OwnSize: size})
}

func (f *fakeFS) touch(path string, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node := f.nodes[path]
	node.ModTime = modTime
	f.nodes[path] = node
}

func (f *fakeFS) resize(path string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node := f.nodes[path]
	node.OwnSize = size
	f.nodes[path] = node
}

func (f *fakeFS) listings(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFS) totalListings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeFS) Stat(path string) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, ok := f.nodes[path]
	if !ok {
		return domain.Node{Path: path, Unknown: true}, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
	}
	return node, nil
}

func (f *fakeFS) Children(ctx context.Context, dir domain.Node) iter.Seq2[domain.Node, error] {
	return func(yield func(domain.Node, error) bool) {
		f.mu.Lock()
		f.calls[dir.Path]++
		hook := f.onList
		listErr := f.listErr[dir.Path]
		paths := append([]string(nil), f.children[dir.Path]...)
		f.mu.Unlock()

		if hook != nil {
			hook(dir.Path)
		}
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if listErr != nil {
			yield(domain.Node{}, listErr)
			return
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				yield(domain.Node{}, err)
				return
			}
			f.mu.Lock()
			node := f.nodes[path]
			f.mu.Unlock()
			if !yield(node, nil) {
				return
			}
		}
	}
}

func (f *fakeFS) scanner(cache sizecache.Cache, opts ...Option) *FSScanner {
	opts = append([]Option{WithWalker(func(walker.Options) walker.Walker { return f })}, opts...)
	return NewFSScanner(cache, opts...)
}

// failingCache refuses every operation.
type failingCache struct{}

func (failingCache) Lookup(string) (sizecache.Entry, bool, error) {
	return sizecache.Entry{}, false, sizecache.ErrClosed
}

func (failingCache) Store(sizecache.Entry) error {
	return sizecache.ErrClosed
}

func sequential() ScanOptions {
	opts := DefaultScanOptions()
	opts.Workers = 1
	return opts
}

func parallel() ScanOptions {
	opts := DefaultScanOptions()
	opts.Workers = 4
	return opts
}

func childByName(entry *domain.Entry, name string) *domain.Entry {
	for _, child := range entry.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// flatten maps every path of the tree to its aggregate.
func flatten(entry *domain.Entry, into map[string]int64) map[string]int64 {
	if into == nil {
		into = make(map[string]int64)
	}
	into[entry.Path] = entry.AggregateSize
	for _, child := range entry.Children {
		flatten(child, into)
	}
	return into
}
