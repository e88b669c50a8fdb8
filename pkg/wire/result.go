package wire

// ResultFlags describe an evaluation result.
type ResultFlags int32

const (
	// FlagExpandable marks values that have children.
	FlagExpandable ResultFlags = 1 << iota
	// FlagMethodCall marks results produced by calling a method.
	FlagMethodCall
	// FlagSideEffects marks results whose evaluation may have changed state.
	FlagSideEffects
	// FlagRaw marks a repr produced in raw mode.
	FlagRaw
	// FlagHasRawRepr marks values that also have a raw representation.
	FlagHasRawRepr
	// FlagNeedsFormatting marks a repr that was cut short and needs full formatting.
	FlagNeedsFormatting
)

// Has reports whether all bits of f are set.
func (r ResultFlags) Has(f ResultFlags) bool {
	return r&f == f
}

// EvalResult is the record sent for evaluated values and enumerated children.
type EvalResult struct {
	Repr     string
	HexRepr  string
	TypeName string
	Length   int32
	Flags    ResultFlags
}
