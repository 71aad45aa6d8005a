package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/ul4/log"
)

// resolve is a [kong.ConfigurationLoader] for YAML configuration files:
//
//	log-level: debug
//	log:
//	  pretty: false
//	render:
//	  keepws: false
//
// Keys are flag names, with hyphens or underscores. A hyphenated name may
// also be written as nested mappings split at the first hyphen. Mappings
// named after a command hold flags of that command and take precedence over
// top-level keys. Command-line flags override all of them.
//
// A file that cannot be parsed is reported and ignored.
func resolve(r io.Reader) (kong.Resolver, error) {
	var doc map[string]any

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		log.Warn("ignoring configuration file", slog.Any("error", err))

		return config{}, nil
	}

	return config(doc), nil
}

// config implements [kong.Resolver] for a decoded YAML document.
type config map[string]any

// Validate implements [kong.Resolver]. Unknown top-level keys are logged.
func (c config) Validate(app *kong.Application) error {
	known := make(map[string]bool)

	var walk func(n *kong.Node)

	walk = func(n *kong.Node) {
		for _, f := range n.Flags {
			known[f.Name] = true
			known[strings.ReplaceAll(f.Name, "-", "_")] = true

			if head, _, ok := strings.Cut(f.Name, "-"); ok {
				known[head] = true
			}
		}

		for _, child := range n.Children {
			known[child.Name] = true
			walk(child)
		}
	}

	walk(app.Node)

	for key := range c {
		if !known[key] {
			log.Warn("unknown configuration key", slog.String("key", key))
		}
	}

	return nil
}

// Resolve implements [kong.Resolver].
func (c config) Resolve(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
	if parent != nil && parent.Command != nil {
		if section, ok := c[parent.Command.Name].(map[string]any); ok {
			if v, ok := lookup(section, flag.Name); ok {
				return scalar(v), nil
			}
		}
	}

	if v, ok := lookup(c, flag.Name); ok {
		return scalar(v), nil
	}

	return nil, nil //nolint:nilnil
}

func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}

	if v, ok := m[strings.ReplaceAll(name, "-", "_")]; ok {
		return v, true
	}

	head, rest, ok := strings.Cut(name, "-")
	if !ok {
		return nil, false
	}

	if sub, ok := m[head].(map[string]any); ok {
		return lookup(sub, rest)
	}

	return nil, false
}

// scalar converts numbers to strings, which kong parses with the flag's own
// mapper regardless of the width YAML decoded them to.
func scalar(v any) any {
	switch v := v.(type) {
	case int, int64, uint64, float64:
		return fmt.Sprint(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = scalar(e)
		}

		return out
	}

	return v
}
