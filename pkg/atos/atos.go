// Package atos resolves binary offsets to symbol names.
package atos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/mxsym/internal/utils"
)

// ErrNoSymbol is returned when a resolver produced no symbol for an offset
var ErrNoSymbol = errors.New("no symbol")

// Resolver maps an offset into a binary's __TEXT segment to a symbol description
type Resolver interface {
	Resolve(ctx context.Context, path, arch string, offset uint64) (string, error)
}

// Atos shells out to atos(1)
type Atos struct {
	Path    string
	Timeout time.Duration
}

// Args returns the atos arguments used to resolve offset
func (a Atos) Args(path, arch string, offset uint64) []string {
	return []string{"-i", "-arch", arch, "-o", path, "-offset", fmt.Sprintf("0x%x", offset)}
}

// Resolve returns atos' output for offset with surrounding whitespace trimmed.
// Inlined frames are separated by newlines.
func (a Atos) Resolve(ctx context.Context, path, arch string, offset uint64) (string, error) {
	bin := a.Path
	if bin == "" {
		bin = "atos"
	}
	out, err := utils.RunCmd(ctx, a.Timeout, bin, a.Args(path, arch, offset)...)
	if err != nil {
		return "", err
	}
	sym := strings.TrimSpace(string(out))
	if sym == "" {
		return "", fmt.Errorf("%s: %w at offset %#x", path, ErrNoSymbol, offset)
	}
	return sym, nil
}
