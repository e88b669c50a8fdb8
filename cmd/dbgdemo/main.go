// AIVory Debugger demo
//
// Runs a small probe-instrumented order processing program so a controller
// can set breakpoints, step and inspect variables in it.
//
// Usage:
//
//	dbgdemo launch --address localhost:5678 --options RedirectOutput
//	dbgdemo attach --config debugger.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aivorynet/debugger-go/pkg/agent"
	"github.com/aivorynet/debugger-go/pkg/debugger"
	"github.com/aivorynet/debugger-go/pkg/evaluate/luaeval"
	"github.com/aivorynet/debugger-go/pkg/probe"
	"github.com/aivorynet/debugger-go/pkg/transport"
)

// exitCode carries the debuggee's exit code out of a command.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("program exited with code %d", int(c))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()

	var code exitCode
	switch {
	case errors.As(err, &code):
		os.Exit(int(code))
	case err != nil:
		os.Exit(1)
	}
}

type flags struct {
	address    string
	configFile string
	session    string
	options    string
	orders     int
}

func (f *flags) sessionOptions() ([]debugger.ConfigOption, error) {
	var opts []debugger.ConfigOption
	if f.configFile != "" {
		opt, err := debugger.LoadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	if f.address != "" {
		opts = append(opts, debugger.WithAddress(f.address))
	}
	if f.options != "" {
		opts = append(opts, debugger.ParseOptions(f.options))
	}
	return append(opts, debugger.WithEvaluator(luaeval.New())), nil
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "dbgdemo",
		Short:        "Run an instrumented sample program under the AIVory debugger",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.address, "address", "", "controller address, host:port or ws:// URL")
	root.PersistentFlags().StringVar(&f.configFile, "config", "", "YAML debugger configuration file")
	root.PersistentFlags().StringVar(&f.session, "session", "", "session id sent to the controller")
	root.PersistentFlags().StringVar(&f.options, "options", "", "comma separated debugger options")
	root.PersistentFlags().IntVar(&f.orders, "orders", 3, "number of orders to process per run")

	root.AddCommand(newLaunchCommand(f), newAttachCommand(f))
	return root
}

func newLaunchCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Start the program stopped at its first statement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := f.sessionOptions()
			if err != nil {
				return err
			}
			cfg := debugger.NewConfig(opts...)

			conn, err := transport.NewDialer(cfg.Debug).Dial(ctx, cfg.Address)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", cfg.Address, err)
			}

			rt := probe.NewRuntime()
			code, err := debugger.Debug(ctx, rt, conn, f.session, func(ctx context.Context, out io.Writer) int {
				var rejected int
				<-rt.Go("main", func(th *probe.Thread) {
					rejected = runOrders(th, out, f.orders)
				})
				if rejected > 0 {
					return 1
				}
				return 0
			}, opts...)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
}

func newAttachCommand(f *flags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Keep processing orders and let a controller attach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var options []agent.ConfigOption
			if f.session != "" {
				options = append(options, agent.WithSessionID(f.session))
			}
			opts, err := f.sessionOptions()
			if err != nil {
				return err
			}
			options = append(options, agent.WithDebuggerOptions(opts...))

			agent.Init(options...)
			defer agent.Shutdown()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for run := 1; ; run++ {
				<-agent.Go(fmt.Sprintf("run-%d", run), func(th *probe.Thread) {
					runOrders(th, cmd.OutOrStdout(), f.orders)
				})
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "pause between runs")
	return cmd
}
