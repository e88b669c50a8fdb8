// Package breakpoint stores line breakpoints and decides whether a statement
// hits one of them.
package breakpoint

// ConditionKind selects how a breakpoint's condition is interpreted.
type ConditionKind int32

const (
	// ConditionAlways hits unconditionally.
	ConditionAlways ConditionKind = iota
	// ConditionWhenTrue hits when the condition evaluates truthy.
	ConditionWhenTrue
	// ConditionWhenChanged hits when the condition value differs from the
	// previous evaluation. The first evaluation only records the value.
	ConditionWhenChanged
)

// Valid reports whether k is a known kind.
func (k ConditionKind) Valid() bool {
	return k >= ConditionAlways && k <= ConditionWhenChanged
}

// PassCountKind gates how many condition hits are needed before a stop.
type PassCountKind int32

const (
	// PassCountAlways stops on every condition hit.
	PassCountAlways PassCountKind = iota
	// PassCountEvery stops on every Nth condition hit.
	PassCountEvery
	// PassCountEqual stops only on the Nth condition hit.
	PassCountEqual
	// PassCountEqualOrGreater stops on the Nth condition hit and every one after.
	PassCountEqualOrGreater
)

// Valid reports whether k is a known kind.
func (k PassCountKind) Valid() bool {
	return k >= PassCountAlways && k <= PassCountEqualOrGreater
}

// BreakpointInfo represents a registered line breakpoint.
type BreakpointInfo struct {
	ID            int32
	Filename      string
	Line          int
	ConditionKind ConditionKind
	Condition     string
	PassCountKind PassCountKind
	PassCount     int
	Bound         bool
	HitCount      int

	// lastValue is only meaningful when hasLast is set.
	lastValue any
	hasLast   bool
}

// passCountAllows applies the pass count policy to the current hit count.
func (bp *BreakpointInfo) passCountAllows() bool {
	switch bp.PassCountKind {
	case PassCountEvery:
		if bp.PassCount <= 0 {
			return true
		}
		return bp.HitCount%bp.PassCount == 0
	case PassCountEqual:
		return bp.HitCount == bp.PassCount
	case PassCountEqualOrGreater:
		return bp.HitCount >= bp.PassCount
	default:
		return true
	}
}
