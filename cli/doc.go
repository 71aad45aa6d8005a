// Package cli contains the command line interface of ul4.
//
// # Usage
//
//	ul4 [flags] [render] [file ...]
//	ul4 dump [--format=ul4on|cbor] [file ...]
//	ul4 fmt [source|tree|json|yaml] [file ...]
//	ul4 repl [file ...]
//	ul4 init [--force]
//
// Without a command, ul4 renders the templates named on the command line, or
// standard input, to standard output. Variables come from YAML or JSON files
// given with --vars and from --set name=value assignments:
//
//	ul4 --vars site.yaml --set title=Home --set count=3 page.ul4
//	ul4 render --watch page.ul4
//
// # Configuration
//
// Flags may also be set in config.yaml (or config.json) below the user
// configuration directory, e.g. ~/.config/ul4/config.yaml. `ul4 init` writes
// the current global flag values there. Command flags go in a mapping named
// after the command:
//
//	log-level: debug
//	render:
//	  keepws: false
//
// # Logging options
//
//   - --log-level: trace, debug, info, warn, error
//   - --log-format: text, json
//   - --log-time-layout: RFC3339, Kitchen, StampMilli, a custom layout, or none
//   - --[no-]log-caller, --[no-]log-pretty
//
// Logger flags are applied before the rest of the command line is parsed,
// so they affect errors reported during parsing.
//
// # Profiling options
//
// Built with the pprof tag, --pprof-mode selects a profile kind and
// --pprof-dir its output directory (default ~/.cache/ul4/pprof).
package cli
