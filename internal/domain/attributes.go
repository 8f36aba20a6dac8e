package domain

import "fmt"

const MaxAttributes = 5

// Attributes is a gathering's attribute vector, fixed at creation.
type Attributes []int64

// At reads axis i; axes the vector does not carry read as zero.
func (a Attributes) At(i int) int64 {
	if i < len(a) {
		return a[i]
	}
	return 0
}

func (a Attributes) Validate() error {
	if len(a) > MaxAttributes {
		return fmt.Errorf("%w: at most %d attributes", ErrInvalidArgument, MaxAttributes)
	}
	return nil
}

// Range bounds one axis. A nil end is unbounded.
type Range struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

func (r Range) Contains(v int64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Predicate holds one Range per axis; Predicate[i] constrains attribute i.
type Predicate []Range

func (p Predicate) Validate() error {
	if len(p) > MaxAttributes {
		return fmt.Errorf("%w: at most %d ranges", ErrInvalidArgument, MaxAttributes)
	}
	for i, r := range p {
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("%w: range %d has min > max", ErrInvalidArgument, i+1)
		}
	}
	return nil
}

func (p Predicate) Match(a Attributes) bool {
	for i, r := range p {
		if !r.Contains(a.At(i)) {
			return false
		}
	}
	return true
}

// Clone deep-copies the predicate so a retained copy cannot drift.
func (p Predicate) Clone() Predicate {
	out := make(Predicate, len(p))
	for i, r := range p {
		if r.Min != nil {
			v := *r.Min
			out[i].Min = &v
		}
		if r.Max != nil {
			v := *r.Max
			out[i].Max = &v
		}
	}
	return out
}
