package model

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Custom implementation of a set of record IDs serializer

type IDSet []uint

// Value implements the driver.Valuer interface.
// IDs are stored as a comma separated list in insertion order
func (s IDSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "", nil
	}

	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}

	return strings.Join(parts, ","), nil
}

// Scan implements the sql.Scanner interface.
func (s *IDSet) Scan(value any) error {
	if value == nil {
		*s = IDSet{}
		return nil
	}

	str, ok := value.(string)
	if !ok {
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan IDSet, %v", value)
		}

		str = string(b)
	}

	set := IDSet{}
	if str == "" {
		*s = set
		return nil
	}

	for _, part := range strings.Split(str, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to scan IDSet element %q, %w", part, err)
		}

		set = set.Add(uint(id))
	}

	*s = set
	return nil
}

func (IDSet) GormDataType() string {
	return "text"
}

func (s IDSet) Contains(id uint) bool {
	return slices.Contains(s, id)
}

// Add returns the set with id appended if it wasn't present yet
func (s IDSet) Add(id uint) IDSet {
	if s.Contains(id) {
		return s
	}

	return append(s, id)
}

// Remove returns the set without id
func (s IDSet) Remove(id uint) IDSet {
	return slices.DeleteFunc(slices.Clone(s), func(v uint) bool { return v == id })
}

// Diff reports which ids of next are missing from s (added) and which
// ids of s are missing from next (removed)
func (s IDSet) Diff(next IDSet) (added, removed IDSet) {
	for _, id := range next {
		if !s.Contains(id) {
			added = append(added, id)
		}
	}

	for _, id := range s {
		if !next.Contains(id) {
			removed = append(removed, id)
		}
	}

	return added, removed
}
