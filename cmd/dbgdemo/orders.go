package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/aivorynet/debugger-go/pkg/hook"
	"github.com/aivorynet/debugger-go/pkg/probe"
)

// sourceFile is this file's path as the compiler recorded it, so breakpoints
// set on the real source lines hit.
var sourceFile = func() string {
	_, file, _, _ := runtime.Caller(0)
	return file
}()

// at returns the caller's line.
func at() int {
	_, _, line, _ := runtime.Caller(1)
	return line
}

// Customer is a helper struct to show object inspection.
type Customer struct {
	ID     string
	Email  string
	Active bool
}

// runOrders processes n orders and returns how many were rejected.
func runOrders(th *probe.Thread, out io.Writer, n int) int {
	th.Call(sourceFile, "main.runOrders", at(), probe.WithLocals(map[string]any{"n": n}))
	defer th.Return()

	rejected := 0
	for i := 0; i < n; i++ {
		th.Line(at())
		if err := processOrder(th, out, i); err != nil {
			th.Line(at())
			rejected++
			th.Set("rejected", rejected)
			fmt.Fprintf(out, "order %d rejected: %v\n", i, err)
		}
	}
	th.Line(at())
	fmt.Fprintf(out, "%d orders, %d rejected\n", n, rejected)
	return rejected
}

func processOrder(th *probe.Thread, out io.Writer, n int) error {
	th.Call(sourceFile, "main.processOrder", at(), probe.WithLocals(map[string]any{"n": n}))
	defer th.Return()

	th.Line(at())
	customer := Customer{
		ID:     fmt.Sprintf("user-%d", n),
		Email:  "test@example.com",
		Active: n%2 == 0,
	}
	th.Set("customer", customer)

	th.Line(at())
	items := []string{"apple", "banana", "cherry"}
	metadata := map[string]any{"iteration": n, "nested": map[string]any{"key": "value"}}
	th.Set("items", items)
	th.Set("metadata", metadata)

	th.Line(at())
	total := priceItems(th, items, n)
	th.Set("total", total)

	th.Line(at())
	if !customer.Active {
		err := fmt.Errorf("customer %s is inactive", customer.ID)
		th.Raise(hook.ErrorException{Err: err})
		return err
	}

	th.Line(at())
	fmt.Fprintf(out, "order %d for %s: total %d\n", n, customer.ID, total)
	return nil
}

func priceItems(th *probe.Thread, items []string, n int) int {
	th.Call(sourceFile, "main.priceItems", at(), probe.WithLocals(map[string]any{"items": items, "n": n}))
	defer th.Return()

	total := 0
	for i, item := range items {
		th.Line(at())
		total += len(item) * (n + 1)
		th.Set("i", i)
		th.Set("total", total)
	}
	th.Line(at())
	return total
}
