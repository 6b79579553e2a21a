package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarningForUsesPathErrorPath(t *testing.T) {
	err := &fs.PathError{Op: "open", Path: "/data/B/secret", Err: fs.ErrPermission}

	warning := WarningFor("/data/B", err)

	assert.Equal(t, WarnPermissionDenied, warning.Kind)
	assert.Equal(t, "/data/B/secret", warning.Path)
	assert.Contains(t, warning.Message, "secret")
}

func TestWarningForClassifies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want WarningKind
	}{
		{"missing", fs.ErrNotExist, WarnNotFound},
		{"cache", fmt.Errorf("open store: %w", ErrCacheUnavailable), WarnCacheUnavailable},
		{"other", errors.New("i/o error"), WarnUnreadable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warning := WarningFor("/x", tt.err)
			assert.Equal(t, tt.want, warning.Kind)
			assert.Equal(t, "/x", warning.Path)
		})
	}
}

func TestParseSortMode(t *testing.T) {
	assert.Equal(t, SortByName, ParseSortMode("name", SortBySize))
	assert.Equal(t, SortBySize, ParseSortMode("bogus", SortBySize))
}

func TestResultPartial(t *testing.T) {
	var empty *Result
	assert.False(t, empty.Partial())

	result := &Result{Root: &Entry{}}
	assert.False(t, result.Partial())

	result.Root.Partial = true
	assert.True(t, result.Partial())
}
