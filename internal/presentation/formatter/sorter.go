package formatter

import (
	"cmp"
	"fmt"
	"sort"
	"strings"
)

// SortField represents the summary column rows are ordered by
type SortField int

const (
	SortByTotal SortField = iota
	SortByCount
	SortByMean
	SortByMax
	SortByName
)

// SortOrder represents the sort order
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
)

var sortFields = map[string]SortField{
	"total": SortByTotal,
	"count": SortByCount,
	"mean":  SortByMean,
	"max":   SortByMax,
	"name":  SortByName,
}

// StatsSorter orders the per-name rows of the summary. Ties are broken by
// name, then type, ascending.
type StatsSorter struct {
	field SortField
	order SortOrder
}

// NewStatsSorter creates a sorter putting the longest total duration first.
func NewStatsSorter() *StatsSorter {
	return &StatsSorter{
		field: SortByTotal,
		order: SortDescending,
	}
}

// ParseSort reads a "field" or "field:asc|desc" sort key. Durations and
// counts default to descending, names to ascending.
func ParseSort(key string) (*StatsSorter, error) {
	if key == "" {
		return NewStatsSorter(), nil
	}

	name, order, hasOrder := strings.Cut(strings.ToLower(key), ":")
	field, ok := sortFields[name]
	if !ok {
		return nil, fmt.Errorf("invalid sort field %q (valid: total, count, mean, max, name)", name)
	}

	s := &StatsSorter{field: field, order: SortDescending}
	if field == SortByName {
		s.order = SortAscending
	}
	if hasOrder {
		switch order {
		case "asc":
			s.order = SortAscending
		case "desc":
			s.order = SortDescending
		default:
			return nil, fmt.Errorf("invalid sort order %q (valid: asc, desc)", order)
		}
	}
	return s, nil
}

// Sort sorts the stats in place based on current settings
func (s *StatsSorter) Sort(stats []NameStats) {
	sort.SliceStable(stats, func(i, j int) bool {
		c := s.compare(stats[i], stats[j])
		if c == 0 {
			return tieBreak(stats[i], stats[j]) < 0
		}
		if s.order == SortDescending {
			return c > 0
		}
		return c < 0
	})
}

func (s *StatsSorter) compare(a, b NameStats) int {
	switch s.field {
	case SortByCount:
		return cmp.Compare(a.Count, b.Count)
	case SortByMean:
		return cmp.Compare(a.Mean(), b.Mean())
	case SortByMax:
		return cmp.Compare(a.Max, b.Max)
	case SortByName:
		return tieBreak(a, b)
	default:
		return cmp.Compare(a.Total, b.Total)
	}
}

func tieBreak(a, b NameStats) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Type, b.Type)
}
