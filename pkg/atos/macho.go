package atos

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/mxsym/pkg/dsym"
	"github.com/blacktop/mxsym/pkg/symbols"
)

// Macho resolves offsets by reading the symbol table of the Mach-O itself.
// It needs no external tools but knows nothing about inlining or line numbers.
type Macho struct {
	Demangle bool
}

// Resolve returns "<symbol> (in <file>) + <delta>" for offset
func (r Macho) Resolve(ctx context.Context, path, arch string, offset uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, closer, err := dsym.OpenMacho(path, arch)
	if err != nil {
		return "", err
	}
	defer closer()

	text := m.Segment("__TEXT")
	if text == nil {
		return "", fmt.Errorf("%s: no __TEXT segment", path)
	}
	addr := text.Addr + offset

	name, start, ok := lookupSymbol(m, addr)
	if !ok {
		return "", fmt.Errorf("%s: %w at offset %#x", path, ErrNoSymbol, offset)
	}
	name = strings.TrimPrefix(name, "_")
	if r.Demangle {
		name = symbols.Demangle(name)
	}
	return fmt.Sprintf("%s (in %s) + %d", name, filepath.Base(path), addr-start), nil
}

func lookupSymbol(m *macho.File, addr uint64) (string, uint64, bool) {
	if fn, err := m.GetFunctionForVMAddr(addr); err == nil {
		if syms, err := m.FindAddressSymbols(fn.StartAddr); err == nil {
			for _, s := range syms {
				if s.Name != "" && !s.Type.IsDebugSym() {
					return s.Name, fn.StartAddr, true
				}
			}
		}
	}
	if m.Symtab == nil {
		return "", 0, false
	}
	return nearestSymbol(m.Symtab.Syms, addr)
}

// nearestSymbol returns the closest non-debug symbol at or before addr
func nearestSymbol(syms []macho.Symbol, addr uint64) (string, uint64, bool) {
	cands := make([]macho.Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Name == "" || s.Value == 0 || s.Type.IsDebugSym() {
			continue
		}
		cands = append(cands, s)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Value < cands[j].Value })

	i := sort.Search(len(cands), func(i int) bool { return cands[i].Value > addr })
	if i == 0 {
		return "", 0, false
	}
	s := cands[i-1]
	return s.Name, s.Value, true
}
