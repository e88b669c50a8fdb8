package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivorynet/debugger-go/pkg/debugger"
	"github.com/aivorynet/debugger-go/pkg/probe"
)

func TestRunOrdersWithoutDebugger(t *testing.T) {
	var out bytes.Buffer
	var rejected int
	<-probe.NewRuntime().Go("main", func(th *probe.Thread) {
		rejected = runOrders(th, &out, 3)
	})

	assert.Equal(t, 1, rejected)
	assert.Contains(t, out.String(), "order 0 for user-0: total 17\n")
	assert.Contains(t, out.String(), "order 1 rejected: customer user-1 is inactive\n")
	assert.Contains(t, out.String(), "3 orders, 1 rejected\n")
}

func TestRootCommandFlags(t *testing.T) {
	root := newRootCommand()
	require.NoError(t, root.ParseFlags([]string{"--address", "ws://controller/debug", "--orders", "5"}))

	addr, err := root.PersistentFlags().GetString("address")
	require.NoError(t, err)
	assert.Equal(t, "ws://controller/debug", addr)

	names := make([]string, 0, 2)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"launch", "attach"}, names)
}

func TestSessionOptionsIncludeEvaluator(t *testing.T) {
	f := &flags{address: "controller:1", options: "RedirectOutput"}
	opts, err := f.sessionOptions()
	require.NoError(t, err)

	cfg := debugger.NewConfig(opts...)
	assert.Equal(t, "controller:1", cfg.Address)
	assert.True(t, cfg.RedirectOutput)
	assert.NotNil(t, cfg.Evaluator)
}
