package sizecache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	wal "github.com/srivastavcodes/write-ahead-log"
	"github.com/valyala/bytebufferpool"
)

const (
	segmentFileExt   = ".SEG"
	lockFileName     = "cache.lock"
	compactDirSuffix = "-compact"
)

// LogOptions configures a LogStore.
type LogOptions struct {
	// DirPath holds the segment files and the lock file. It is created when
	// missing.
	DirPath string

	// SegmentSize is the maximum size of one segment file in bytes.
	SegmentSize int64

	// Sync forces an fsync after every write.
	Sync bool

	// BytesPerSync is the number of bytes written between fsyncs when Sync is
	// off. Zero leaves syncing to Flush and Close.
	BytesPerSync uint32

	// CompactSchedule runs Compact on a cron schedule, for example "@daily"
	// or "0 3 * * *". Seconds are optional. Empty disables it.
	CompactSchedule string

	Logger zerolog.Logger
}

// LogStats describes the on-disk state of a LogStore.
type LogStats struct {
	Entries  int
	DiskSize int64
}

// LogStore is an append-only cache. Every Store appends a record to a
// segmented log and an in-memory btree points each path at its latest record.
// Superseded records stay on disk until Compact rewrites the log.
type LogStore struct {
	mu      sync.RWMutex
	opts    LogOptions
	lock    *flock.Flock
	log     *wal.Wal
	index   *pathIndex
	header  []byte
	cron    *cron.Cron
	closed  bool
	dirtied bool
}

var _ Store = (*LogStore)(nil)

// OpenLog opens or creates the log in opts.DirPath. Only one process may use
// a directory at a time; a second one gets ErrLocked.
func OpenLog(opts LogOptions) (*LogStore, error) {
	if opts.DirPath == "" {
		return nil, errors.New("cache directory is empty")
	}
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(opts.DirPath, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(opts.DirPath, lockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	if !acquired {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, opts.DirPath)
	}
	store := &LogStore{
		opts:   opts,
		lock:   lock,
		index:  newPathIndex(),
		header: make([]byte, maxRecordHeaderSize),
	}
	if err := finishCompaction(opts.DirPath); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if store.log, err = store.openWal(opts.DirPath); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if err := store.loadIndex(); err != nil {
		_ = store.log.Close()
		_ = lock.Unlock()
		return nil, err
	}
	if opts.CompactSchedule != "" {
		store.cron = cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)))
		_, err := store.cron.AddFunc(opts.CompactSchedule, func() {
			if err := store.Compact(); err != nil && !errors.Is(err, ErrClosed) {
				store.opts.Logger.Warn().Err(err).Str("dir", opts.DirPath).Msg("scheduled cache compaction failed")
			}
		})
		if err != nil {
			_ = store.log.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("compact schedule %q: %w", opts.CompactSchedule, err)
		}
		store.cron.Start()
	}
	return store, nil
}

func (store *LogStore) openWal(dir string) (*wal.Wal, error) {
	return wal.Open(wal.Options{
		DirPath:        dir,
		SegmentSize:    store.opts.SegmentSize,
		SegmentFileExt: segmentFileExt,
		Sync:           store.opts.Sync,
		BytesPerSync:   store.opts.BytesPerSync,
	})
}

// loadIndex replays the log. Later records win; a delete removes the path.
func (store *LogStore) loadIndex() error {
	reader := store.log.NewReader()
	store.log.SetIsStartupTraversal(true)
	defer store.log.SetIsStartupTraversal(false)
	for {
		data, pos, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		kind, entry, err := decodeRecord(data)
		if err != nil {
			return err
		}
		switch kind {
		case recordPut:
			store.index.put(entry.Path, pos)
		case recordDelete:
			store.index.delete(entry.Path)
		}
	}
}

func (store *LogStore) Lookup(path string) (Entry, bool, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.closed {
		return Entry{}, false, ErrClosed
	}
	pos := store.index.get(path)
	if pos == nil {
		return Entry{}, false, nil
	}
	entry, err := store.read(pos)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (store *LogStore) read(pos *wal.ChunkPosition) (Entry, error) {
	data, err := store.log.Read(pos)
	if err != nil {
		return Entry{}, err
	}
	_, entry, err := decodeRecord(data)
	return entry, err
}

func (store *LogStore) Store(entry Entry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return ErrClosed
	}
	pos, err := store.append(recordPut, entry)
	if err != nil {
		return err
	}
	store.index.put(entry.Path, pos)
	return nil
}

func (store *LogStore) append(kind recordType, entry Entry) (*wal.ChunkPosition, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	pos, err := store.log.Write(encodeRecord(kind, entry, store.header, buf))
	if err != nil {
		return nil, err
	}
	store.dirtied = true
	return pos, nil
}

func (store *LogStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.index.len()
}

func (store *LogStore) Range(prefix string, fn func(Entry) bool) error {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.closed {
		return ErrClosed
	}
	var readErr error
	store.index.ascend(prefix, func(_ string, pos *wal.ChunkPosition) bool {
		entry, err := store.read(pos)
		if err != nil {
			readErr = err
			return false
		}
		return fn(entry)
	})
	return readErr
}

func (store *LogStore) Prune(prefix string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return 0, ErrClosed
	}
	var paths []string
	store.index.ascend(prefix, func(path string, _ *wal.ChunkPosition) bool {
		paths = append(paths, path)
		return true
	})
	for i, path := range paths {
		if _, err := store.append(recordDelete, Entry{Path: path}); err != nil {
			return i, err
		}
		store.index.delete(path)
	}
	return len(paths), nil
}

func (store *LogStore) Flush() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return ErrClosed
	}
	if !store.dirtied {
		return nil
	}
	store.dirtied = false
	return store.log.Sync()
}

// Compact rewrites the log so it holds only the latest record of each live
// path.
func (store *LogStore) Compact() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return ErrClosed
	}
	if store.log.IsEmpty() {
		return nil
	}
	dir := compactDirPath(store.opts.DirPath)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	compacted, err := store.openWal(dir)
	if err != nil {
		return err
	}
	index := newPathIndex()
	var copyErr error
	store.index.ascend("", func(path string, pos *wal.ChunkPosition) bool {
		data, err := store.log.Read(pos)
		if err != nil {
			copyErr = err
			return false
		}
		newPos, err := compacted.Write(data)
		if err != nil {
			copyErr = err
			return false
		}
		index.put(path, newPos)
		return true
	})
	if copyErr == nil {
		copyErr = compacted.Sync()
	}
	if err := compacted.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("compact cache: %w", copyErr)
	}
	if err := store.log.Close(); err != nil {
		return err
	}
	if err := finishCompaction(store.opts.DirPath); err != nil {
		return err
	}
	if store.log, err = store.openWal(store.opts.DirPath); err != nil {
		store.closed = true
		return err
	}
	store.index = index
	store.opts.Logger.Debug().Str("dir", store.opts.DirPath).Int("entries", index.len()).Msg("cache compacted")
	return nil
}

// Stats reports the live entry count and the bytes the log occupies on disk.
func (store *LogStore) Stats() (LogStats, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	size, err := dirSize(store.opts.DirPath)
	return LogStats{Entries: store.index.len(), DiskSize: size}, err
}

func (store *LogStore) Close() error {
	if store.cron != nil {
		<-store.cron.Stop().Done()
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return nil
	}
	store.closed = true
	err := store.log.Close()
	if unlockErr := store.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

func compactDirPath(dir string) string {
	return filepath.Clean(dir) + compactDirSuffix
}

// finishCompaction swaps in the segments of a completed compaction, if one
// is waiting next to dir.
func finishCompaction(dir string) error {
	compactDir := compactDirPath(dir)
	compacted, err := filepath.Glob(filepath.Join(compactDir, "*"+segmentFileExt))
	if err != nil {
		return err
	}
	if len(compacted) == 0 {
		return os.RemoveAll(compactDir)
	}
	current, err := filepath.Glob(filepath.Join(dir, "*"+segmentFileExt))
	if err != nil {
		return err
	}
	for _, path := range current {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	for _, path := range compacted {
		if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
			return err
		}
	}
	return os.RemoveAll(compactDir)
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
