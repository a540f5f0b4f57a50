package domain

import (
	"encoding/json"
	"strconv"
)

// Count is a record count that may be unknown when the index cannot report it.
type Count struct {
	n     int
	known bool
}

// KnownCount creates an exact count.
func KnownCount(n int) Count { return Count{n: n, known: true} }

// UnknownCount creates a count the index could not report.
func UnknownCount() Count { return Count{} }

// Value returns the count and whether it is known.
func (c Count) Value() (int, bool) { return c.n, c.known }

// Add returns c plus n. An unknown count stays unknown.
func (c Count) Add(n int) Count {
	if !c.known {
		return c
	}
	return KnownCount(c.n + n)
}

// Known reports whether the count is exact.
func (c Count) Known() bool { return c.known }

func (c Count) String() string {
	if !c.known {
		return "unknown"
	}
	return strconv.Itoa(c.n)
}

// MarshalJSON encodes a known count as a number and an unknown one as "unknown".
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.known {
		return json.Marshal("unknown")
	}
	return json.Marshal(c.n)
}
