package eval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Selection is a parsed, 0-indexed set of case indexes plus its
// canonical comma-separated 1-indexed rendering (spec §8 "Record
// selection").
type Selection struct {
	Indexes    map[int]struct{}
	Normalized string
}

// ParseRecordSelection parses a comma-separated list of 1-indexed
// record numbers and ranges (e.g. "1,3-4") into a 0-indexed Selection.
// ParseRecordSelection("1,3-4") == {Indexes: {0,2,3}, Normalized: "1,3,4"}.
func ParseRecordSelection(s string) (Selection, error) {
	indexes := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, err := parseRange(part)
		if err != nil {
			return Selection{}, err
		}
		for i := lo; i <= hi; i++ {
			indexes[i-1] = struct{}{}
		}
	}
	if len(indexes) == 0 {
		return Selection{}, fmt.Errorf("record selection %q selects no records", s)
	}
	return Selection{Indexes: indexes, Normalized: normalize(indexes)}, nil
}

func parseRange(part string) (lo, hi int, err error) {
	if dash := strings.IndexByte(part, '-'); dash > 0 {
		lo, err = strconv.Atoi(part[:dash])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid record selection %q: %w", part, err)
		}
		hi, err = strconv.Atoi(part[dash+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid record selection %q: %w", part, err)
		}
		if lo < 1 || hi < lo {
			return 0, 0, fmt.Errorf("invalid record range %q", part)
		}
		return lo, hi, nil
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid record selection %q: %w", part, err)
	}
	if n < 1 {
		return 0, 0, fmt.Errorf("invalid record index %q", part)
	}
	return n, n, nil
}

func normalize(indexes map[int]struct{}) string {
	sorted := make([]int, 0, len(indexes))
	for i := range indexes {
		sorted = append(sorted, i)
	}
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, idx := range sorted {
		parts[i] = strconv.Itoa(idx + 1)
	}
	return strings.Join(parts, ",")
}
