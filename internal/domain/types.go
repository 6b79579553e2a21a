package domain

type SortMode string

const (
	SortBySize SortMode = "size"
	SortByName SortMode = "name"
	SortByMod  SortMode = "mod"
)

// ParseSortMode returns fallback for unknown values.
func ParseSortMode(value string, fallback SortMode) SortMode {
	switch SortMode(value) {
	case SortBySize, SortByName, SortByMod:
		return SortMode(value)
	default:
		return fallback
	}
}
