package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/ul4/lang"
	"github.com/ardnew/ul4/log"
)

// Vars collects the variables passed to a template.
type Vars struct {
	Files []string `help:"YAML or JSON file(s) of variables, merged in order." name:"vars" placeholder:"FILE" short:"V" type:"existingfile"`
	Set   []string `help:"Set variable NAME to the YAML value VALUE."         name:"set"  placeholder:"NAME=VALUE" short:"D"`
}

// Load reads the variable files, then applies the assignments. Mappings
// become ordered dicts so that templates iterate them in file order.
func (v *Vars) Load(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)

	for _, path := range v.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ErrReadVars.With(slogPath(path)).Wrap(err)
		}

		vars, err := decodeVars(data)
		if err != nil {
			return nil, ErrReadVars.With(slogPath(path)).Wrap(err)
		}

		log.DebugContext(ctx, "loaded variables",
			slogPath(path),
			slog.Int("count", len(vars)))

		maps.Copy(out, vars)
	}

	for _, set := range v.Set {
		name, value, err := parseAssignment(set)
		if err != nil {
			return nil, err
		}

		out[name] = value
	}

	return out, nil
}

// decodeVars decodes a YAML (or JSON) mapping of variables.
func decodeVars(data []byte) (map[string]any, error) {
	var doc yaml.MapSlice

	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(doc))

	for _, item := range doc {
		key, ok := item.Key.(string)
		if !ok {
			return nil, ErrReadVars.Wrap(lang.ErrType.Wrapf("variable name %v is not a string", item.Key))
		}

		out[key] = fromYAML(item.Value)
	}

	return out, nil
}

// parseAssignment splits NAME=VALUE and decodes VALUE as YAML, so that
// "n=3" binds an int, "s=abc" a string, and "l=[1, 2]" a list.
func parseAssignment(s string) (string, any, error) {
	name, value, ok := strings.Cut(s, "=")
	if name = strings.TrimSpace(name); !ok || name == "" {
		return "", nil, ErrAssignment.With(slog.String("arg", s))
	}

	if value == "" {
		return name, "", nil
	}

	var v any

	if err := yaml.UnmarshalWithOptions([]byte(value), &v, yaml.UseOrderedMap()); err != nil {
		// Not valid YAML; take it literally.
		return name, value, nil //nolint:nilerr
	}

	return name, fromYAML(v), nil
}

// fromYAML converts decoded YAML to template values: ordered mappings
// become dicts, sequences lists, and integers int.
func fromYAML(v any) any {
	switch v := v.(type) {
	case yaml.MapSlice:
		d := lang.NewDict()

		for _, item := range v {
			key := fromYAML(item.Key)

			switch key.(type) {
			case []any, *lang.Dict:
				key = fmt.Sprint(item.Key)
			}

			d.Set(key, fromYAML(item.Value))
		}

		return d
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = fromYAML(e)
		}

		return out
	case uint64:
		return int(v) //nolint:gosec
	case int64:
		return int(v)
	}

	return v
}
