package chunk

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strconv"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// MaxExtraKeys caps caller metadata per chunk.
const MaxExtraKeys = 32

var extraKeyRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

// ScalarKind enumerates the value types allowed in extra metadata.
type ScalarKind int

const (
	// KindString is a string value.
	KindString ScalarKind = iota
	// KindNumber is a float64 value.
	KindNumber
	// KindBool is a boolean value.
	KindBool
)

// Scalar is a single extra metadata value.
type Scalar struct {
	kind ScalarKind
	str  string
	num  float64
	b    bool
}

// String creates a string scalar.
func String(v string) Scalar { return Scalar{kind: KindString, str: v} }

// Number creates a numeric scalar.
func Number(v float64) Scalar { return Scalar{kind: KindNumber, num: v} }

// Bool creates a boolean scalar.
func Bool(v bool) Scalar { return Scalar{kind: KindBool, b: v} }

// Kind returns the value type.
func (s Scalar) Kind() ScalarKind { return s.kind }

// Value returns the underlying Go value.
func (s Scalar) Value() any {
	switch s.kind {
	case KindNumber:
		return s.num
	case KindBool:
		return s.b
	default:
		return s.str
	}
}

// Encode renders the value for a string-typed store field.
func (s Scalar) Encode() string {
	switch s.kind {
	case KindNumber:
		return strconv.FormatFloat(s.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(s.b)
	default:
		return s.str
	}
}

// MarshalJSON encodes the scalar as its plain JSON value.
func (s Scalar) MarshalJSON() ([]byte, error) { return json.Marshal(s.Value()) }

// Extra is caller-supplied metadata merged into each stored record.
type Extra map[string]Scalar

// NewExtra validates raw values. Reserved keys and non-scalar values are rejected.
func NewExtra(raw map[string]any) (Extra, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) > MaxExtraKeys {
		return nil, fmt.Errorf("%w: too many metadata keys (max %d)", domain.ErrInvalidInput, MaxExtraKeys)
	}

	out := make(Extra, len(raw))
	for k, v := range raw {
		if IsReserved(k) {
			return nil, fmt.Errorf("%w: metadata key %q is reserved", domain.ErrInvalidInput, k)
		}
		if !extraKeyRegex.MatchString(k) {
			return nil, fmt.Errorf("%w: invalid metadata key %q", domain.ErrInvalidInput, k)
		}
		s, err := toScalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata key %q: %w", domain.ErrInvalidInput, k, err)
		}
		out[k] = s
	}
	return out, nil
}

// Clone returns an independent copy.
func (e Extra) Clone() Extra {
	if e == nil {
		return nil
	}
	return maps.Clone(e)
}

func toScalar(v any) (Scalar, error) {
	switch x := v.(type) {
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Scalar{}, fmt.Errorf("parse number: %w", err)
		}
		return Number(f), nil
	case Scalar:
		return x, nil
	default:
		return Scalar{}, fmt.Errorf("unsupported value type %T", v)
	}
}
