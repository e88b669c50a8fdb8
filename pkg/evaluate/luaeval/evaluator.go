// Package luaeval evaluates debugger expressions with an embedded Lua
// interpreter. A frame's globals and locals are exposed as Lua globals, locals
// taking precedence.
package luaeval

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

// Evaluator implements hook.Evaluator. Each evaluation runs in a fresh Lua
// state on the calling goroutine, so it is safe for concurrent use.
type Evaluator struct {
	// WriteBack pushes assignments to frame locals back into frames that
	// implement hook.LocalSetter.
	WriteBack bool
}

// New creates an evaluator that writes assignments back to the frame.
func New() *Evaluator {
	return &Evaluator{WriteBack: true}
}

var _ hook.Evaluator = (*Evaluator)(nil)

func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return L
}

// Evaluate runs expr as an expression, or as a statement block when it does
// not parse as one. Statements produce a nil result.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, frame hook.Frame) (any, error) {
	L := newState()
	defer L.Close()
	L.SetContext(ctx)

	var locals map[string]lua.LValue
	if frame != nil {
		for name, v := range frame.Globals() {
			L.SetGlobal(name, toLua(L, v))
		}
		locals = make(map[string]lua.LValue)
		for name, v := range frame.Locals() {
			lv := toLua(L, v)
			locals[name] = lv
			L.SetGlobal(name, lv)
		}
	}

	fn, err := L.LoadString("return " + expr)
	if err != nil {
		var serr error
		if fn, serr = L.LoadString(expr); serr != nil {
			return nil, fmt.Errorf("compile %q: %w", expr, serr)
		}
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	result := toGo(L.Get(-1), make(map[*lua.LTable]bool))
	L.Pop(1)

	if e.WriteBack {
		if setter, ok := frame.(hook.LocalSetter); ok {
			for name, before := range locals {
				if after := L.GetGlobal(name); after != before {
					setter.SetLocal(name, toGo(after, make(map[*lua.LTable]bool)))
				}
			}
		}
	}
	return result, nil
}
