package walker

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"sizescope/internal/domain"
)

const readBatch = 256

// OSWalker reads the local filesystem.
type OSWalker struct {
	opts   Options
	filter *Filter
}

var _ Walker = (*OSWalker)(nil)

func New(opts Options) *OSWalker {
	return &OSWalker{opts: opts, filter: NewFilter(opts)}
}

func (walker *OSWalker) Options() Options {
	return walker.opts
}

func (walker *OSWalker) Filter() *Filter {
	return walker.filter
}

func (walker *OSWalker) Stat(path string) (domain.Node, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return unknownNode(path, false), err
	}
	return walker.resolve(path, info)
}

func (walker *OSWalker) Children(ctx context.Context, dir domain.Node) iter.Seq2[domain.Node, error] {
	return func(yield func(domain.Node, error) bool) {
		file, err := os.Open(dir.Path)
		if err != nil {
			yield(domain.Node{}, err)
			return
		}
		defer file.Close()

		for {
			if err := ctx.Err(); err != nil {
				yield(domain.Node{}, err)
				return
			}
			entries, readErr := file.ReadDir(readBatch)
			for _, entry := range entries {
				path := filepath.Join(dir.Path, entry.Name())
				if walker.filter.Skip(path) {
					continue
				}
				if !yield(walker.childNode(path, entry)) {
					return
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					yield(domain.Node{}, readErr)
				}
				return
			}
		}
	}
}

func (walker *OSWalker) childNode(path string, entry fs.DirEntry) (domain.Node, error) {
	info, err := entry.Info()
	if err != nil {
		return unknownNode(path, entry.IsDir()), err
	}
	return walker.resolve(path, info)
}

func (walker *OSWalker) resolve(path string, info fs.FileInfo) (domain.Node, error) {
	node := nodeFromInfo(path, info)
	if !node.Symlink || !walker.opts.FollowSymlinks {
		return node, nil
	}
	target, err := os.Stat(path)
	if err != nil {
		node.Unknown = true
		node.OwnSize = 0
		return node, err
	}
	resolved := nodeFromInfo(path, target)
	resolved.Symlink = true
	return resolved, nil
}

func nodeFromInfo(path string, info fs.FileInfo) domain.Node {
	node := domain.Node{
		Path:    path,
		Name:    displayName(path),
		ModTime: info.ModTime(),
		Symlink: info.Mode()&fs.ModeSymlink != 0,
	}
	if info.IsDir() {
		node.Type = domain.NodeDir
	} else {
		node.Type = domain.NodeFile
		node.OwnSize = info.Size()
	}
	return node
}

func unknownNode(path string, isDir bool) domain.Node {
	node := domain.Node{Path: path, Name: displayName(path), Type: domain.NodeFile, Unknown: true}
	if isDir {
		node.Type = domain.NodeDir
	}
	return node
}

func displayName(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return path
	}
	return name
}
