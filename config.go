package xmlstream

import (
	"cmp"
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	defaultMaxDepth     = 256
	defaultMaxAttrs     = 256
	defaultMaxTokenSize = 4 << 20
)

// Limits bound the parser against hostile or runaway input. A zero field
// falls back to its default; use a negative value for "unlimited" only via
// explicit construction, never from config files.
type Limits struct {
	// MaxDepth caps open-element nesting, the root included.
	MaxDepth int `toml:"max_depth"`
	// MaxAttrs caps attributes on a single element.
	MaxAttrs int `toml:"max_attrs"`
	// MaxTokenSize caps the bytes buffered while waiting for a single
	// construct (tag, comment, CDATA section, text run) to complete.
	MaxTokenSize int `toml:"max_token_size"`
}

// DefaultLimits returns the stock limits (depth 256, attrs 256, 4 MiB
// token size).
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:     defaultMaxDepth,
		MaxAttrs:     defaultMaxAttrs,
		MaxTokenSize: defaultMaxTokenSize,
	}
}

func (l Limits) withDefaults() Limits {
	return Limits{
		MaxDepth:     cmp.Or(l.MaxDepth, defaultMaxDepth),
		MaxAttrs:     cmp.Or(l.MaxAttrs, defaultMaxAttrs),
		MaxTokenSize: cmp.Or(l.MaxTokenSize, defaultMaxTokenSize),
	}
}

// LoadLimits reads limits from a TOML file, overlaying only the keys the
// file actually defines onto the defaults.
func LoadLimits(path string) (Limits, error) {
	cfg := DefaultLimits()

	var raw Limits
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Limits{}, fmt.Errorf("xmlstream: load limits: %w", err)
	}

	if meta.IsDefined("max_depth") {
		cfg.MaxDepth = raw.MaxDepth
	}
	if meta.IsDefined("max_attrs") {
		cfg.MaxAttrs = raw.MaxAttrs
	}
	if meta.IsDefined("max_token_size") {
		cfg.MaxTokenSize = raw.MaxTokenSize
	}

	if cfg.MaxDepth < 1 {
		return Limits{}, fmt.Errorf("xmlstream: max_depth must be >= 1")
	}
	if cfg.MaxAttrs < 0 {
		return Limits{}, fmt.Errorf("xmlstream: max_attrs must be >= 0")
	}
	if cfg.MaxTokenSize < 1 {
		return Limits{}, fmt.Errorf("xmlstream: max_token_size must be >= 1")
	}
	return cfg, nil
}
