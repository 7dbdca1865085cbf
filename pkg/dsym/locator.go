package dsym

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/mxsym/internal/utils"
	"github.com/google/uuid"
)

// FS answers whether a candidate path exists
type FS interface {
	Exists(path string) bool
}

// OSFS checks the local filesystem
type OSFS struct{}

// Exists returns true if path exists
func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Match is a located symbol file
type Match struct {
	Path string
	Arch string
	Rule string
	Root string
}

// Config configures a Locator
type Config struct {
	// Target is the name of the binary SymbolsPath has the symbols of
	Target      string
	SymbolsPath string
	// Arch is used for the target, SystemArch for everything under Roots
	Arch       string
	SystemArch string
	// Roots are device support Symbols folders, searched in order
	Roots []string
	// Rules defaults to DefaultRules(Target, SymbolsPath)
	Rules []Rule
	FS    FS
	UUIDs UUIDReader
}

type lookupKey struct {
	binary string
	uuid   string
}

type lookupResult struct {
	match *Match
	err   error
}

type uuidResult struct {
	uuid string
	err  error
}

// Stats counts Locator lookups
type Stats struct {
	Lookups int
	Hits    int
	Misses  int
	Probes  int
}

// Locator finds the symbol file of a (binary name, UUID) pair.
// Results are cached for the lifetime of the Locator and never retried.
// A Locator is not safe for concurrent use.
type Locator struct {
	rules      []Rule
	roots      []string
	arch       string
	systemArch string
	fs         FS
	uuids      UUIDReader

	symbolFiles map[lookupKey]lookupResult
	binaryUUIDs map[string]uuidResult
	stats       Stats
}

// NewLocator creates a Locator
func NewLocator(conf Config) *Locator {
	l := &Locator{
		rules:       conf.Rules,
		roots:       conf.Roots,
		arch:        conf.Arch,
		systemArch:  conf.SystemArch,
		fs:          conf.FS,
		uuids:       conf.UUIDs,
		symbolFiles: make(map[lookupKey]lookupResult),
		binaryUUIDs: make(map[string]uuidResult),
	}
	if l.rules == nil {
		l.rules = DefaultRules(conf.Target, conf.SymbolsPath)
	}
	if l.fs == nil {
		l.fs = OSFS{}
	}
	if l.uuids == nil {
		l.uuids = Dwarfdump{}
	}
	if l.arch == "" {
		l.arch = "arm64"
	}
	if l.systemArch == "" {
		l.systemArch = "arm64e"
	}
	return l
}

// AddRoots appends device support Symbols folders to search.
// Lookups that already missed are not retried.
func (l *Locator) AddRoots(roots ...string) {
	l.roots = append(l.roots, roots...)
}

// Stats returns the lookup counters
func (l *Locator) Stats() Stats {
	return l.stats
}

// Resolve returns the symbol file for binary whose UUID is id.
// Failures are a *LookupError wrapping ErrNotFound, ErrUUIDMismatch
// or ErrUUIDUnreadable.
func (l *Locator) Resolve(ctx context.Context, binary, id string) (*Match, error) {
	l.stats.Lookups++

	key := lookupKey{binary, id}
	if res, ok := l.symbolFiles[key]; ok {
		return res.match, res.err
	}

	m, err := l.lookup(ctx, binary, id)
	if ctx.Err() != nil {
		// don't remember failures caused by cancellation
		return nil, ctx.Err()
	}
	l.symbolFiles[key] = lookupResult{m, err}
	if err != nil {
		l.stats.Misses++
	} else {
		l.stats.Hits++
	}
	return m, err
}

func (l *Locator) lookup(ctx context.Context, binary, id string) (*Match, error) {
	if err := uuid.Validate(id); err != nil {
		// matching is by exact string, so keep going
		utils.Indent(log.WithError(err).Debug, 2)(fmt.Sprintf("frame UUID %q of %s is not canonical", id, binary))
	}

	var existed, readable bool

	try := func(path, root string, c Candidate) *Match {
		l.stats.Probes++
		if !l.fs.Exists(path) {
			return nil
		}
		existed = true
		got, err := l.UUID(ctx, path, c.Arch)
		if err != nil {
			utils.Indent(log.WithError(err).Debug, 2)(fmt.Sprintf("failed to read UUID of %s", path))
			return nil
		}
		readable = true
		if got != id {
			utils.Indent(log.Debug, 2)(fmt.Sprintf("UUID mismatch for %s: %s != %s", path, got, id))
			return nil
		}
		return &Match{Path: path, Arch: c.Arch, Rule: c.Rule, Root: root}
	}

	cands := Candidates(l.rules, binary, l.arch, l.systemArch)

	for _, c := range cands {
		if c.Rooted {
			continue
		}
		if m := try(c.Path, "", c); m != nil {
			return m, nil
		}
	}
	for _, root := range l.roots {
		for _, c := range cands {
			if !c.Rooted {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if m := try(filepath.Join(root, c.Path), root, c); m != nil {
				return m, nil
			}
		}
	}

	lerr := &LookupError{Binary: binary, UUID: id, Err: ErrNotFound}
	switch {
	case existed && readable:
		lerr.Err = ErrUUIDMismatch
	case existed:
		lerr.Err = ErrUUIDUnreadable
	}
	return nil, lerr
}

// UUID returns the (cached) UUID of the symbol file at path
func (l *Locator) UUID(ctx context.Context, path, arch string) (string, error) {
	if res, ok := l.binaryUUIDs[path]; ok {
		return res.uuid, res.err
	}
	id, err := l.uuids.ReadUUID(ctx, path, arch)
	if err != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}
	l.binaryUUIDs[path] = uuidResult{id, err}
	return id, err
}
