package lang

import (
	"bytes"
	"context"
	"encoding/gob"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/klauspost/readahead"
	"github.com/zeebo/xxh3"
)

// globalCache maps (source hash ^ options hash) to compiled templates.
var globalCache sync.Map

// state tracks the single compilation of one cache entry.
type state struct {
	once sync.Once
	tmpl *Template
	err  error
}

// hashOptions encodes the options that affect compilation using gob and
// hashes them with xxh3.
func hashOptions(t *Template) uint64 {
	var buf bytes.Buffer

	enc := gob.NewEncoder(&buf)

	_ = enc.Encode(t.Name)
	_ = enc.Encode(t.StartDelim)
	_ = enc.Encode(t.EndDelim)
	_ = enc.Encode(t.KeepWS)

	return xxh3.Hash(buf.Bytes())
}

// CompileCached compiles source like [Compile], reusing the result of an
// earlier call with the same source and compile options. Runtime options
// (logger, depth limit) are applied to the returned copy.
func CompileCached(ctx context.Context, source string, opts ...Option) (*Template, error) {
	cfg := newTemplate(source, opts...)

	sourceHash := xxh3.HashString(source)
	optsHash := hashOptions(cfg)
	key := strconv.FormatUint(sourceHash^optsHash, 36)

	value, hit := globalCache.LoadOrStore(key, new(state))

	entry, ok := value.(*state)
	if !ok {
		return nil, ErrSerialize.Wrapf("invalid cache entry %T", value)
	}

	cfg.logger.TraceContext(ctx, "cache lookup",
		slog.String("source_hash", strconv.FormatUint(sourceHash, 16)),
		slog.String("opts_hash", strconv.FormatUint(optsHash, 16)),
		slog.Bool("cache_hit", hit))

	entry.once.Do(func() {
		entry.tmpl, entry.err = Compile(ctx, source, opts...)
	})

	if entry.err != nil {
		return nil, entry.err
	}

	return entry.tmpl.Configure(opts...), nil
}

// CompileCachedReader reads all of r and compiles it with [CompileCached].
func CompileCachedReader(ctx context.Context, r io.Reader, opts ...Option) (*Template, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).With(slog.String("source", "reader"))
	}

	return CompileCached(ctx, string(data), opts...)
}

// ClearCache removes all cached templates.
// This is primarily useful for testing or when memory needs to be reclaimed.
func ClearCache() {
	globalCache.Clear()
}
