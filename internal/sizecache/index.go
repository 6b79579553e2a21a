package sizecache

import (
	"strings"

	"github.com/google/btree"
	wal "github.com/srivastavcodes/write-ahead-log"
)

// pathIndex maps a directory path to the position of its latest record.
// Callers hold the store lock.
type pathIndex struct {
	tree *btree.BTree
}

type indexItem struct {
	path string
	pos  *wal.ChunkPosition
}

func (i *indexItem) Less(other btree.Item) bool {
	if other == nil {
		return false
	}
	return i.path < other.(*indexItem).path
}

func newPathIndex() *pathIndex {
	return &pathIndex{tree: btree.New(32)}
}

func (idx *pathIndex) put(path string, pos *wal.ChunkPosition) {
	idx.tree.ReplaceOrInsert(&indexItem{path: path, pos: pos})
}

func (idx *pathIndex) get(path string) *wal.ChunkPosition {
	found := idx.tree.Get(&indexItem{path: path})
	if found == nil {
		return nil
	}
	return found.(*indexItem).pos
}

func (idx *pathIndex) delete(path string) {
	idx.tree.Delete(&indexItem{path: path})
}

func (idx *pathIndex) len() int {
	return idx.tree.Len()
}

// ascend visits every path at or below prefix in order until fn returns
// false.
func (idx *pathIndex) ascend(prefix string, fn func(path string, pos *wal.ChunkPosition) bool) {
	idx.tree.AscendGreaterOrEqual(&indexItem{path: prefix}, func(item btree.Item) bool {
		it := item.(*indexItem)
		if !strings.HasPrefix(it.path, prefix) {
			return false
		}
		if !within(prefix, it.path) {
			return true
		}
		return fn(it.path, it.pos)
	})
}
