package cli

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ardnew/ul4/pkg"
)

// Configuration file names below [configDir]. ul4 init writes the YAML file;
// a JSON file is read as well when present.
const (
	baseConfig = "config"
	configYAML = baseConfig + ".yaml"
	configJSON = baseConfig + ".json"
)

// defaultDirMode is the permission mode of created directories.
var defaultDirMode os.FileMode = 0o700

// basePrefix returns the directory name used below the user's config and
// cache directories: the executable's base name without extension, with
// debugger binaries ("__debug_bin123") mapped to [pkg.Name] and leading dots
// removed.
var basePrefix = sync.OnceValue(
	func() string {
		id := os.Args[0]
		exe, err := os.Executable()
		if err == nil {
			id = exe
		}

		ext := filepath.Ext(filepath.Base(id))
		id = strings.TrimSuffix(filepath.Base(id), ext)

		for _, sub := range []struct {
			rex *regexp.Regexp
			rep string
		}{
			{regexp.MustCompile(`^__debug_bin\d+$`), pkg.Name}, // dlv default output
			{regexp.MustCompile(`^\.+`), ""},                  // leading dot(s)
		} {
			id = sub.rex.ReplaceAllString(id, sub.rep)
		}

		if id == "" {
			return pkg.Name
		}

		return id
	},
)

// userDir joins basePrefix to the directory returned by base, falling back
// to $HOME/fallback and then to the working directory.
func userDir(base func() (string, error), fallback string) func() string {
	return func() string {
		dir, err := base()
		if err != nil {
			if home, herr := os.UserHomeDir(); herr == nil {
				dir = filepath.Join(home, fallback)
			} else if dir, err = os.Getwd(); err != nil {
				dir = "."
			}
		}

		return filepath.Join(dir, basePrefix())
	}
}

// configDir returns the configuration directory path.
var configDir = sync.OnceValue(userDir(os.UserConfigDir, ".config"))

// cacheDir returns the cache directory path used for transient files such
// as profiles and REPL history.
var cacheDir = sync.OnceValue(userDir(os.UserCacheDir, ".cache"))

// configPath joins elem to the configuration directory.
func configPath(elem ...string) string {
	return filepath.Join(append([]string{configDir()}, elem...)...)
}

// mkdirAllRequired creates the configuration and cache directories.
func mkdirAllRequired() error {
	for _, dir := range []string{configDir(), cacheDir()} {
		if err := os.MkdirAll(dir, defaultDirMode); err != nil {
			return err
		}
	}

	return nil
}
