// Package capture renders debuggee values and captures stacks for fault logs.
package capture

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/aivorynet/debugger-go/pkg/wire"
)

// ReprKind selects how a value is rendered.
type ReprKind int32

const (
	// ReprNormal quotes strings and renders composites briefly.
	ReprNormal ReprKind = iota
	// ReprRaw renders strings and byte slices without quoting.
	ReprRaw
	// ReprRawLen reports only the raw length.
	ReprRawLen
)

// DefaultMaxRepr bounds a repr when no limit is given.
const DefaultMaxRepr = 1000

const maxChildren = 100

// Value is a described value.
type Value struct {
	Name       string
	Type       string
	Repr       string
	Hex        string
	Length     int
	Expandable bool
	Truncated  bool
	HasRaw     bool
	Raw        bool
}

// Result converts v to the wire record.
func (v Value) Result() wire.EvalResult {
	var flags wire.ResultFlags
	if v.Expandable {
		flags |= wire.FlagExpandable
	}
	if v.HasRaw {
		flags |= wire.FlagHasRawRepr
	}
	if v.Raw {
		flags |= wire.FlagRaw
	}
	if v.Truncated {
		flags |= wire.FlagNeedsFormatting
	}
	return wire.EvalResult{
		Repr:     v.Repr,
		HexRepr:  v.Hex,
		TypeName: v.Type,
		Length:   int32(v.Length),
		Flags:    flags,
	}
}

// Describe renders value. maxLen bounds the repr; zero means DefaultMaxRepr.
func Describe(name string, value any, kind ReprKind, maxLen int) Value {
	if maxLen <= 0 {
		maxLen = DefaultMaxRepr
	}
	if value == nil {
		return Value{Name: name, Type: "nil", Repr: "nil"}
	}

	v := reflect.ValueOf(value)
	t := v.Type()
	out := Value{Name: name, Type: t.String()}

	if err, ok := value.(error); ok && v.Kind() != reflect.String {
		out.Repr, out.Truncated = truncate(err.Error(), maxLen)
		out.Expandable = errors.Unwrap(err) != nil || hasFields(v)
		return out
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out.Repr = strconv.FormatInt(v.Int(), 10)
		out.Hex = fmt.Sprintf("%#x", v.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		out.Repr = strconv.FormatUint(v.Uint(), 10)
		out.Hex = fmt.Sprintf("%#x", v.Uint())

	case reflect.Bool, reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		out.Repr = fmt.Sprintf("%v", value)

	case reflect.String:
		describeText(&out, v.String(), kind, maxLen)

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			out.Repr = "nil"
			return out
		}
		if t.Elem().Kind() == reflect.Uint8 && kind != ReprNormal {
			describeText(&out, string(bytesOf(v)), kind, maxLen)
			return out
		}
		out.Length = v.Len()
		out.Expandable = out.Length > 0
		out.Repr, out.Truncated = truncate(fmt.Sprintf("%v", value), maxLen)
		out.HasRaw = t.Elem().Kind() == reflect.Uint8

	case reflect.Map:
		if v.IsNil() {
			out.Repr = "nil"
			return out
		}
		out.Length = v.Len()
		out.Expandable = out.Length > 0
		out.Repr, out.Truncated = truncate(fmt.Sprintf("%v", value), maxLen)

	case reflect.Struct:
		out.Expandable = hasFields(v)
		out.Repr, out.Truncated = truncate(fmt.Sprintf("%+v", value), maxLen)

	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			out.Repr = "nil"
			return out
		}
		inner := Describe(name, v.Elem().Interface(), kind, maxLen)
		inner.Type = out.Type
		inner.Hex = ""
		if v.Kind() == reflect.Ptr && v.Elem().Kind() == reflect.Struct {
			inner.Repr, inner.Truncated = truncate("&"+inner.Repr, maxLen)
		}
		return inner

	default:
		out.Repr = fmt.Sprintf("<%s>", t.Kind())
	}
	return out
}

func describeText(out *Value, s string, kind ReprKind, maxLen int) {
	out.Length = len(s)
	out.HasRaw = true
	switch kind {
	case ReprRaw:
		out.Raw = true
		out.Repr, out.Truncated = truncate(s, maxLen)
	case ReprRawLen:
		out.Raw = true
	default:
		out.Repr, out.Truncated = truncate(strconv.Quote(s), maxLen)
	}
}

func bytesOf(v reflect.Value) []byte {
	if v.Kind() == reflect.Slice {
		return v.Bytes()
	}
	b := make([]byte, v.Len())
	reflect.Copy(reflect.ValueOf(b), v)
	return b
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}

func hasFields(v reflect.Value) bool {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

// Children enumerates the members of value: indexed elements, map entries
// sorted by key text, exported struct fields in declaration order, and for
// errors the wrapped errors.
func Children(value any, maxLen int) []Value {
	if value == nil {
		return nil
	}

	var out []Value
	if err, ok := value.(error); ok {
		out = append(out, errorChildren(err, maxLen)...)
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return out
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		n := v.Len()
		if n > maxChildren {
			n = maxChildren
		}
		for i := 0; i < n; i++ {
			out = append(out, describeElem(fmt.Sprintf("[%d]", i), v.Index(i), maxLen))
		}

	case reflect.Map:
		type entry struct {
			name string
			val  reflect.Value
		}
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			entries = append(entries, entry{name: fmt.Sprintf("%v", iter.Key().Interface()), val: iter.Value()})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
		if len(entries) > maxChildren {
			entries = entries[:maxChildren]
		}
		for _, e := range entries {
			out = append(out, describeElem(e.name, e.val, maxLen))
		}

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField() && i < maxChildren; i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			out = append(out, describeElem(field.Name, v.Field(i), maxLen))
		}
	}
	return out
}

func describeElem(name string, v reflect.Value, maxLen int) Value {
	if !v.CanInterface() {
		return Value{Name: name, Type: v.Type().String(), Repr: "<unexported>"}
	}
	return Describe(name, v.Interface(), ReprNormal, maxLen)
}

func errorChildren(err error, maxLen int) []Value {
	var out []Value
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			out = append(out, Describe("wrapped_error", inner, ReprNormal, maxLen))
		}
	case interface{ Unwrap() []error }:
		for i, e := range u.Unwrap() {
			if i >= maxChildren {
				break
			}
			out = append(out, Describe(fmt.Sprintf("wrapped_errors[%d]", i), e, ReprNormal, maxLen))
		}
	}
	if c, ok := err.(interface{ Cause() error }); ok {
		if cause := c.Cause(); cause != nil {
			out = append(out, Describe("cause", cause, ReprNormal, maxLen))
		}
	}
	return out
}
