package services

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sizescope/internal/domain"
	"sizescope/internal/sizecache"
)

func exampleTree() *fakeFS {
	return newFakeFS().
		dir("/r").
		file("/r/A", 10).
		dir("/r/B").
		file("/r/B/c", 20)
}

func TestScanAggregatesBottomUp(t *testing.T) {
	for name, opts := range map[string]ScanOptions{"sequential": sequential(), "parallel": parallel()} {
		t.Run(name, func(t *testing.T) {
			result, err := exampleTree().scanner(sizecache.NewMemory()).Scan(context.Background(), ScanRequest{RootPath: "/r", Options: opts})
			require.NoError(t, err)

			assert.EqualValues(t, 30, result.Root.AggregateSize)
			assert.EqualValues(t, 10, childByName(result.Root, "A").AggregateSize)
			assert.EqualValues(t, 20, childByName(result.Root, "B").AggregateSize)
			assert.False(t, result.Partial())
			assert.Empty(t, result.Warnings)
			assert.NotEmpty(t, result.ID)
			assert.EqualValues(t, 2, result.Stats.Dirs)
			assert.EqualValues(t, 2, result.Stats.Files)
		})
	}
}

func TestScanReusesValidCacheEntries(t *testing.T) {
	tree := exampleTree()
	cache := sizecache.NewMemory()
	scanner := tree.scanner(cache)
	ctx := context.Background()

	_, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.Equal(t, 2, tree.totalListings())

	second, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.Equal(t, 2, tree.totalListings(), "a valid root entry must not be enumerated")
	assert.True(t, second.Root.Cached)
	assert.EqualValues(t, 30, second.Root.AggregateSize)
	assert.EqualValues(t, 1, second.Stats.CacheHits)
}

func TestScanRecomputesChangedDirectory(t *testing.T) {
	tree := exampleTree()
	cache := sizecache.NewMemory()
	scanner := tree.scanner(cache)
	ctx := context.Background()
	_, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)

	tree.file("/r/B/d", 5)
	tree.touch("/r/B", baseTime.Add(time.Minute))
	tree.touch("/r", baseTime.Add(time.Minute))

	result, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.EqualValues(t, 35, result.Root.AggregateSize)
	assert.EqualValues(t, 25, childByName(result.Root, "B").AggregateSize)
	assert.Equal(t, 2, tree.listings("/r/B"))

	cached, ok, err := cache.Lookup("/r/B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 25, cached.AggregateSize)
}

// The cache trusts a directory's own mtime. A change two levels down leaves
// the parent's mtime alone, so the stale total is served.
func TestScanServesStaleAggregateWhenOnlyChildChanged(t *testing.T) {
	tree := exampleTree()
	scanner := tree.scanner(sizecache.NewMemory())
	ctx := context.Background()
	_, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)

	tree.resize("/r/B/c", 200)
	tree.touch("/r/B", baseTime.Add(time.Minute))

	result, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.True(t, result.Root.Cached)
	assert.EqualValues(t, 30, result.Root.AggregateSize)

	fresh, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r/B", Options: sequential()})
	require.NoError(t, err)
	assert.EqualValues(t, 200, fresh.Root.AggregateSize)
}

func TestScanWithoutCacheLookupStillWritesBack(t *testing.T) {
	tree := exampleTree()
	cache := sizecache.NewMemory()
	opts := sequential()
	opts.UseCache = false
	scanner := tree.scanner(cache)

	for range 2 {
		_, err := scanner.Scan(context.Background(), ScanRequest{RootPath: "/r", Options: opts})
		require.NoError(t, err)
	}
	assert.Equal(t, 4, tree.totalListings())
	assert.Equal(t, 2, cache.Len())
}

func TestScanReportsPermissionDeniedAsPartial(t *testing.T) {
	tree := newFakeFS().
		dir("/r").
		file("/r/ok", 7).
		dir("/r/X").
		file("/r/X/hidden", 100)
	tree.listErr["/r/X"] = &fs.PathError{Op: "open", Path: "/r/X", Err: fs.ErrPermission}
	cache := sizecache.NewMemory()

	result, err := tree.scanner(cache).Scan(context.Background(), ScanRequest{RootPath: "/r", Options: parallel()})
	require.NoError(t, err)

	assert.EqualValues(t, 7, result.Root.AggregateSize)
	x := childByName(result.Root, "X")
	require.NotNil(t, x)
	assert.True(t, x.Partial)
	assert.Zero(t, x.AggregateSize)
	assert.True(t, result.Root.Partial, "partial propagates to ancestors")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.WarnPermissionDenied, result.Warnings[0].Kind)
	assert.Equal(t, "/r/X", result.Warnings[0].Path)

	cached, ok, err := cache.Lookup("/r/X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached.Partial)

	again, err := tree.scanner(cache).Scan(context.Background(), ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.False(t, again.Root.Cached, "partial entries are never reused")
}

func TestScanEmptyDirectoryIsCached(t *testing.T) {
	tree := newFakeFS().dir("/empty")
	cache := sizecache.NewMemory()

	result, err := tree.scanner(cache).Scan(context.Background(), ScanRequest{RootPath: "/empty", Options: sequential()})
	require.NoError(t, err)
	assert.Zero(t, result.Root.AggregateSize)
	assert.Empty(t, result.Root.Children)

	cached, ok, err := cache.Lookup("/empty")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, cached.AggregateSize)
	assert.True(t, cached.ModTime.Equal(baseTime))
}

func TestScanFileRoot(t *testing.T) {
	tree := newFakeFS().dir("/r").file("/r/f", 42)
	cache := sizecache.NewMemory()

	result, err := tree.scanner(cache).Scan(context.Background(), ScanRequest{RootPath: "/r/f", Options: sequential()})
	require.NoError(t, err)
	assert.EqualValues(t, 42, result.Root.AggregateSize)
	assert.Empty(t, result.Root.Children)
	assert.Zero(t, cache.Len())
}

func TestScanMissingRoot(t *testing.T) {
	_, err := newFakeFS().scanner(nil).Scan(context.Background(), ScanRequest{RootPath: "/nope", Options: sequential()})
	assert.ErrorIs(t, err, domain.ErrPathNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestScanCancelledMidway(t *testing.T) {
	tree := newFakeFS().dir("/r")
	for _, name := range []string{"a", "b", "c", "d"} {
		tree.dir("/r/" + name).file("/r/"+name+"/f", 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	tree.onList = func(path string) {
		if path == "/r/b" {
			cancel()
		}
	}
	cache := sizecache.NewMemory()

	result, err := tree.scanner(cache).Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.True(t, result.Root.Cancelled)
	assert.True(t, result.Partial())

	_, ok, err := cache.Lookup("/r")
	require.NoError(t, err)
	assert.False(t, ok, "cancelled entries are never cached")
	_, ok, err = cache.Lookup("/r/a")
	require.NoError(t, err)
	assert.True(t, ok, "subtrees finished before the cancel stay cached")
}

func TestScanWithFailingCache(t *testing.T) {
	result, err := exampleTree().scanner(failingCache{}).Scan(context.Background(), ScanRequest{RootPath: "/r", Options: parallel()})
	require.NoError(t, err)
	assert.EqualValues(t, 30, result.Root.AggregateSize)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.WarnCacheUnavailable, result.Warnings[0].Kind)
}

func TestScanCarriesCacheOpenError(t *testing.T) {
	scanner := exampleTree().scanner(sizecache.NewMemory(), WithCacheError(domain.ErrCacheUnavailable))
	result, err := scanner.Scan(context.Background(), ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, domain.WarnCacheUnavailable, result.Warnings[0].Kind)
}

func TestScanDepthGuard(t *testing.T) {
	tree := newFakeFS().dir("/r").dir("/r/a").dir("/r/a/b").file("/r/a/b/f", 3).file("/r/a/g", 4)
	opts := sequential()
	opts.MaxDepth = 1

	result, err := tree.scanner(nil).Scan(context.Background(), ScanRequest{RootPath: "/r", Options: opts})
	require.NoError(t, err)
	a := childByName(result.Root, "a")
	require.NotNil(t, a)
	assert.True(t, a.Partial)
	assert.Zero(t, a.AggregateSize)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.WarnDepthLimit, result.Warnings[0].Kind)
	assert.Zero(t, tree.listings("/r/a"))
}

func TestScanEnumeratesEachPathOnceUnderConcurrentScans(t *testing.T) {
	tree := newFakeFS().dir("/r")
	for _, name := range []string{"a", "b", "c"} {
		tree.dir("/r/" + name).file("/r/"+name+"/f", 10)
	}
	tree.delay = 20 * time.Millisecond
	scanner := tree.scanner(sizecache.NewMemory())

	var wg sync.WaitGroup
	results := make([]*domain.Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := scanner.Scan(context.Background(), ScanRequest{RootPath: "/r", Options: parallel()})
			assert.NoError(t, err)
			results[i] = result
		}()
	}
	wg.Wait()

	for _, result := range results {
		require.NotNil(t, result)
		assert.EqualValues(t, 30, result.Root.AggregateSize)
	}
	for _, path := range []string{"/r", "/r/a", "/r/b", "/r/c"} {
		assert.Equal(t, 1, tree.listings(path), path)
	}
}

func TestSequentialAndParallelAgree(t *testing.T) {
	root := t.TempDir()
	for i, dir := range []string{"a", "a/b", "a/b/c", "d", "d/e", "f"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "data"), make([]byte, 100*(i+1)), 0o644))
	}
	opts := parallel()
	opts.UseCache = false

	seq, err := NewFSScanner(nil).Scan(context.Background(), ScanRequest{RootPath: root, Options: sequential()})
	require.NoError(t, err)
	par, err := NewFSScanner(nil).Scan(context.Background(), ScanRequest{RootPath: root, Options: opts})
	require.NoError(t, err)

	assert.Equal(t, flatten(seq.Root, nil), flatten(par.Root, nil))
	assert.EqualValues(t, 2100, seq.Root.AggregateSize)
}

func TestScanDetectsSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f"), make([]byte, 8), 0o644))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "a", "loop")))
	opts := sequential()
	opts.FollowSymlinks = true
	opts.UseCache = false

	result, err := NewFSScanner(nil).Scan(context.Background(), ScanRequest{RootPath: root, Options: opts})
	require.NoError(t, err)
	assert.EqualValues(t, 8, result.Root.AggregateSize)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.WarnSymlinkCycle, result.Warnings[0].Kind)
	assert.Equal(t, filepath.Join(root, "a", "loop"), result.Warnings[0].Path)
}

func TestScanResolvesSymlinkRoot(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "f"), make([]byte, 16), 0o644))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(target, link))

	result, err := NewFSScanner(nil).Scan(context.Background(), ScanRequest{RootPath: link, Options: sequential()})
	require.NoError(t, err)
	assert.EqualValues(t, 16, result.Root.AggregateSize)
	assert.True(t, result.Root.IsDir())
}

func TestStartHandleCancel(t *testing.T) {
	tree := exampleTree()
	release := make(chan struct{})
	tree.onList = func(string) { <-release }
	scanner := tree.scanner(nil)

	handle, err := scanner.Start(context.Background(), ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)
	assert.Contains(t, scanner.Running(), handle.ID)
	assert.True(t, scanner.Cancel(handle.ID))
	close(release)

	result := handle.Wait()
	assert.True(t, result.Cancelled)
	assert.Equal(t, handle.ID, result.ID)
	<-handle.Done()
	for range handle.Progress() {
	}

	assert.False(t, scanner.Cancel(handle.ID))
	_, err = scanner.Handle(handle.ID)
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestExpandBypassesOwnEntry(t *testing.T) {
	tree := exampleTree()
	cache := sizecache.NewMemory()
	scanner := tree.scanner(cache)
	ctx := context.Background()
	_, err := scanner.Scan(ctx, ScanRequest{RootPath: "/r", Options: sequential()})
	require.NoError(t, err)

	expanded, err := scanner.Expand(ctx, "/r", sequential())
	require.NoError(t, err)
	assert.False(t, expanded.Root.Cached)
	require.Len(t, expanded.Root.Children, 2)
	assert.True(t, childByName(expanded.Root, "B").Cached)
	assert.EqualValues(t, 30, expanded.Root.AggregateSize)
	assert.Equal(t, 2, tree.listings("/r"))
	assert.Equal(t, 1, tree.listings("/r/B"))
}

func TestScanAllKeepsRootOrder(t *testing.T) {
	tree := newFakeFS().dir("/x").file("/x/f", 1).dir("/y").file("/y/f", 2)
	scanner := tree.scanner(nil)

	results, err := ScanAll(context.Background(), scanner, []string{"/y", "/missing", "/x"}, sequential(), 2)
	assert.ErrorIs(t, err, domain.ErrPathNotFound)
	require.Len(t, results, 3)
	assert.EqualValues(t, 2, results[0].Root.AggregateSize)
	assert.Nil(t, results[1])
	assert.EqualValues(t, 1, results[2].Root.AggregateSize)
}

func TestMockScanner(t *testing.T) {
	scanner := &MockScanner{}
	result, err := scanner.Scan(context.Background(), ScanRequest{RootPath: "/demo"})
	require.NoError(t, err)
	assert.EqualValues(t, 4096+512+1<<20, result.Root.AggregateSize)
	assert.Equal(t, "guide.pdf", result.Root.Children[0].Children[0].Name)
}
