// Package symbolicator prints the call stack trees of MetricKit diagnostics
// with every frame resolved to a symbol.
package symbolicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/mxsym/internal/colors"
	"github.com/blacktop/mxsym/internal/utils"
	"github.com/blacktop/mxsym/pkg/atos"
	"github.com/blacktop/mxsym/pkg/dsym"
	"github.com/blacktop/mxsym/pkg/metrickit"
	"github.com/blacktop/mxsym/pkg/symbols"
)

const (
	// DefaultMaxDepth bounds how deep a call stack tree is walked
	DefaultMaxDepth = 1024

	indentUnit = "|  "
	// crashLevel renders frames as a flat crash stack
	crashLevel = -1
)

// Locator finds the symbol file of a binary
type Locator interface {
	Resolve(ctx context.Context, binary, uuid string) (*dsym.Match, error)
}

// Options configures a Renderer
type Options struct {
	Writer   io.Writer
	Locator  Locator
	Resolver atos.Resolver
	// MaxDepth defaults to DefaultMaxDepth
	MaxDepth int
	Palette  colors.Palette
	Demangle bool
}

// Stats counts rendered frames by outcome
type Stats struct {
	Frames       int
	Symbolicated int
	Unresolved   int
	Failed       int
	Missing      int
	TooDeep      int
}

// Renderer prints call stack trees
type Renderer struct {
	w        io.Writer
	loc      Locator
	resolver atos.Resolver
	maxDepth int
	pal      colors.Palette
	demangle bool
	stats    Stats
}

// NewRenderer creates a Renderer
func NewRenderer(opts Options) *Renderer {
	r := &Renderer{
		w:        opts.Writer,
		loc:      opts.Locator,
		resolver: opts.Resolver,
		maxDepth: opts.MaxDepth,
		pal:      opts.Palette,
		demangle: opts.Demangle,
	}
	if r.w == nil {
		r.w = os.Stdout
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	if r.pal.Header == nil {
		r.pal = colors.NewPalette(false)
	}
	return r
}

// Stats returns the frame counters accumulated so far
func (r *Renderer) Stats() Stats {
	return r.stats
}

type node struct {
	frame *metrickit.Frame
	level int
	depth int
}

// RenderTree prints every root frame of tree with its subtree.
//
// Per-thread trees print like a crash stack, everything else like a spindump:
// one indent unit per level and each line prefixed with its sample count.
// forceSpindump selects spindump style regardless of the tree.
func (r *Renderer) RenderTree(ctx context.Context, tree *metrickit.CallStackTree, forceSpindump bool) error {
	level := 0
	if tree.PerThread && !forceSpindump {
		level = crashLevel
	}

	n := 0
	for _, stack := range tree.CallStacks {
		for i := range stack.RootFrames {
			prefix := ""
			if stack.ThreadAttributed {
				prefix = "Attributed: "
			}
			fmt.Fprintln(r.w, r.pal.Stack(fmt.Sprintf("%sCall stack %d:", prefix, n)))
			if err := r.renderFrames(ctx, &stack.RootFrames[i], level); err != nil {
				return err
			}
			fmt.Fprintln(r.w)
			n++
		}
	}
	return nil
}

// renderFrames walks the subtree of root in pre-order with an explicit stack
func (r *Renderer) renderFrames(ctx context.Context, root *metrickit.Frame, level int) error {
	stack := []node{{frame: root, level: level}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r.stats.Frames++

		if cur.depth > r.maxDepth {
			r.stats.TooDeep++
			fmt.Fprintln(r.w, indent(cur.level)+r.pal.Missing("<max depth exceeded>"))
			continue
		}

		visit, err := r.renderFrame(ctx, cur.frame, cur.level)
		if err != nil {
			return err
		}
		if !visit {
			continue
		}

		next := cur.level
		if next != crashLevel {
			next++
		}
		subs := cur.frame.SubFrames
		for i := len(subs) - 1; i >= 0; i-- {
			stack = append(stack, node{frame: &subs[i], level: next, depth: cur.depth + 1})
		}
	}

	return nil
}

// renderFrame prints a single frame and reports whether its subframes should be visited
func (r *Renderer) renderFrame(ctx context.Context, f *metrickit.Frame, level int) (bool, error) {
	pad := indent(level)

	if !f.Complete() {
		r.stats.Missing++
		fmt.Fprintln(r.w, pad+r.pal.Missing("<missing information in frame>"))
		return false, nil
	}

	m, err := r.loc.Resolve(ctx, f.Name(), f.UUID())
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.stats.Unresolved++
		reason := err.Error()
		var lerr *dsym.LookupError
		if errors.As(err, &lerr) {
			reason = lerr.Reason()
		}
		r.warn(pad, reason, f)
		return true, nil
	}

	text, err := r.resolver.Resolve(ctx, m.Path, m.Arch, f.TextOffset())
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.stats.Failed++
		utils.Indent(log.WithError(err).Debug, 2)(fmt.Sprintf("failed to symbolicate %s+%d", f.Name(), f.TextOffset()))
		r.warn(pad, "symbolication failed: "+collapse(err.Error()), f)
		return true, nil
	}

	r.stats.Symbolicated++
	text = strings.TrimSpace(text)
	if r.demangle {
		text = symbols.DemangleLines(text)
	}
	text = collapse(text)

	if level == crashLevel {
		fmt.Fprintln(r.w, text)
	} else {
		fmt.Fprintf(r.w, "%s%s: %s\n", pad, r.pal.Samples(strconv.Itoa(f.Samples())), text)
	}
	return true, nil
}

func (r *Renderer) warn(pad, reason string, f *metrickit.Frame) {
	fmt.Fprintf(r.w, "%s%s %s (%d)\n", pad, r.pal.Warning("<WARNING, "+reason+">"), f.Name(), f.TextOffset())
}

func indent(level int) string {
	if level <= 0 {
		return ""
	}
	return strings.Repeat(indentUnit, level)
}

// collapse puts multi-line resolver output (inlined frames) on one line
func collapse(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " <newline> ")
}
