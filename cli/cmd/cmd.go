package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
)

// contextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, _ := ctx.Value(contextKey{}).(*kong.Context)

	return ktx
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// Sources is a deduplicated list of input files read as one stream, with
// standard input, if named, read last. Files are opened anew by each call to
// [Sources.Open], so a Sources without stdin can be read repeatedly.
type Sources struct {
	paths    []string
	hasStdin bool
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

// OpenSources resolves names to a [Sources]. No names, or "-", select
// standard input. Files are deduplicated by resolving symlinks and comparing
// device/inode pairs; a name that cannot be resolved is an error.
func OpenSources(names []string) (*Sources, error) {
	var src Sources

	if len(names) == 0 {
		src.hasStdin = true

		return &src, nil
	}

	seen := make(map[fileKey]struct{})

	stdinInfo, _ := os.Stdin.Stat()
	stdinKey, stdinOK := makeFileKey(stdinInfo)

	for _, name := range names {
		if name == stdinSource {
			src.hasStdin = true

			continue
		}

		path, key, ok, err := resolveFile(name)
		if err != nil {
			return nil, ErrReadSource.With(slogPath(name)).Wrap(err)
		}

		if ok {
			if stdinOK && key == stdinKey {
				src.hasStdin = true

				continue
			}

			if _, dup := seen[key]; dup {
				continue
			}

			seen[key] = struct{}{}
		}

		src.paths = append(src.paths, path)
	}

	return &src, nil
}

// Paths returns the resolved file paths, excluding standard input.
func (s *Sources) Paths() []string { return s.paths }

// Stdin reports whether standard input is one of the sources.
func (s *Sources) Stdin() bool { return s.hasStdin }

// Name describes the sources for logs and template names: the base name of
// a single file, "stdin", or "".
func (s *Sources) Name() string {
	switch {
	case len(s.paths) == 1 && !s.hasStdin:
		return filepath.Base(s.paths[0])
	case len(s.paths) == 0 && s.hasStdin:
		return "stdin"
	}

	return ""
}

// Open returns a reader over all sources in order.
func (s *Sources) Open() (io.ReadCloser, error) {
	files := make([]*os.File, 0, len(s.paths))
	readers := make([]io.Reader, 0, len(s.paths)+1)

	for _, path := range s.paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll(files)

			return nil, ErrReadSource.With(slogPath(path)).Wrap(err)
		}

		files = append(files, f)
		readers = append(readers, f)
	}

	if s.hasStdin {
		readers = append(readers, os.Stdin)
	}

	return multiReadCloser{Reader: io.MultiReader(readers...), files: files}, nil
}

type multiReadCloser struct {
	io.Reader

	files []*os.File
}

func (m multiReadCloser) Close() error { return closeAll(m.files) }

func closeAll(files []*os.File) error {
	var first error

	for _, f := range files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// resolveFile returns the symlink-free absolute path of name and, if the
// platform provides one, its identity.
func resolveFile(name string) (path string, key fileKey, ok bool, err error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", key, false, err
	}

	path, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", key, false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", key, false, err
	}

	key, ok = makeFileKey(info)

	return path, key, ok, nil
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	if info == nil {
		return key, false
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true //nolint:unconvert
}
