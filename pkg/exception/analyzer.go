package exception

import (
	"context"
	"log"
	"path"
	"strings"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

var archiveExts = map[string]bool{".zip": true, ".jar": true, ".egg": true}

// RegionAnalyzer judges handling from handler regions the controller computed
// for each source file.
type RegionAnalyzer struct {
	Cache *RegionCache
	// Debuggable reports whether a frame belongs to user code.
	Debuggable func(hook.Frame) bool
	Debug      bool
}

// IsHandled implements Analyzer.
//
// When the exception arrived from a deeper debuggable frame it was already
// judged there and counts as handled. Otherwise the frames from the handling
// frame outward are searched for a region covering the current line whose
// handlers match the exception. Frames from archives are assumed to handle
// it. Any failure to get regions means unhandled.
func (a *RegionAnalyzer) IsHandled(ctx context.Context, exc hook.Exception, trace []hook.Frame) bool {
	if len(trace) == 0 {
		return false
	}
	if len(trace) > 1 && a.Debuggable != nil && a.Debuggable(trace[1]) {
		return true
	}

	for f := trace[0]; f != nil; f = f.Parent() {
		file := f.File()
		if isArchived(file) {
			return true
		}

		regions, err := a.Cache.Fetch(ctx, file)
		if err != nil {
			if a.Debug {
				log.Printf("[AIVory Debugger] Handler regions for %s unavailable: %v", file, err)
			}
			return false
		}

		line := f.Line()
		for _, r := range regions {
			if r.Contains(line) && matchesAny(f, exc, r.Handlers) {
				return true
			}
		}
	}
	return false
}

func matchesAny(f hook.Frame, exc hook.Exception, handlers []string) bool {
	resolver, _ := f.(hook.TypeResolver)
	for _, expr := range handlers {
		expr = strings.TrimSpace(expr)
		if expr == Wildcard {
			return true
		}
		if expr == "" {
			continue
		}
		name := expr
		if resolver != nil {
			if resolved, ok := resolver.ResolveType(expr); ok {
				name = resolved
			}
		}
		if exc.IsA(name) {
			return true
		}
	}
	return false
}

// isArchived reports whether file lives inside a packaged archive.
func isArchived(file string) bool {
	parts := strings.Split(strings.ReplaceAll(strings.ToLower(file), "\\", "/"), "/")
	for _, p := range parts[:len(parts)-1] {
		if archiveExts[path.Ext(p)] {
			return true
		}
	}
	return false
}
