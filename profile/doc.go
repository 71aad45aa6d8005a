// Package profile wraps [github.com/pkg/profile] for the ul4 command.
//
// Profiling is compiled in only with the "pprof" build tag:
//
//	go build -tags pprof .
//	ul4 --pprof-mode=cpu render page.ul4 > /dev/null
//	go tool pprof -http=: ~/.cache/ul4/pprof/cpu.pprof
//
// Without the tag [Modes] is empty, [Enabled] is false, and [Profiler.Start]
// returns a no-op stopper. A pprof build also registers the handlers of
// [net/http/pprof] with the default mux.
//
// Supported modes are allocs, block, clock, cpu, goroutine, heap, mem,
// mutex, thread and trace. Profile files are named after the mode and
// written to the configured directory.
package profile

// Tag is the build tag required to enable pprof profiling.
const Tag = `pprof`
