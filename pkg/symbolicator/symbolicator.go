package symbolicator

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/mxsym/internal/utils"
	"github.com/blacktop/mxsym/pkg/metrickit"
)

const (
	dateFormat      = "2006-01-02T15:04:05-07:00"
	dateFormatMicro = "2006-01-02T15:04:05.000000-07:00"
)

// Symbolicator prints a whole MetricKit report
type Symbolicator struct {
	*Renderer
	roots []string
}

// New creates a Symbolicator for a report whose system binaries live in roots
func New(opts Options, roots []string) *Symbolicator {
	return &Symbolicator{
		Renderer: NewRenderer(opts),
		roots:    roots,
	}
}

// Symbolicate prints the report header followed by every diagnostic in the report
func (s *Symbolicator) Symbolicate(ctx context.Context, rep *metrickit.Report) error {
	s.writeHeader(rep)

	for _, kind := range metrickit.Kinds {
		diags, ok := rep.Diagnostics[kind]
		if !ok {
			continue
		}
		if kind == metrickit.KindCrash && len(diags) != 1 {
			log.Warnf("Report has %d crash diagnostics, expected exactly one", len(diags))
		}
		for i := range diags {
			if err := s.Diagnostic(ctx, rep, &diags[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Symbolicator) writeHeader(rep *metrickit.Report) {
	fmt.Fprintf(s.w, "Customer ID: %s\n", rep.CustomerID)
	fmt.Fprintf(s.w, "Date of report on device: %s\n", FormatDate(rep.Timestamp))
	fmt.Fprintf(s.w, "Device: %s, %s\n", rep.DeviceModel, rep.OSVersion)

	if len(s.roots) == 0 {
		log.Warnf("failed to find system library path for %s %s", rep.OSVersion, rep.DeviceModel)
	}
	for _, root := range s.roots {
		fmt.Fprintf(s.w, "Found system library path for %s %s: %s\n", rep.OSVersion, rep.DeviceModel, root)
	}
	fmt.Fprintln(s.w)
}

// Diagnostic prints the kind specific header of diag and its call stack tree
func (s *Symbolicator) Diagnostic(ctx context.Context, rep *metrickit.Report, diag *metrickit.Diagnostic) error {
	forceSpindump := false

	switch diag.Kind {
	case metrickit.KindCrash:
		md, err := diag.CrashMetaData()
		if err != nil {
			return err
		}
		s.title(diag.Kind, md.MetaData)
		fmt.Fprintf(s.w, "Exception type: %d, %s\n", md.ExceptionType, metrickit.ExceptionTypeName(md.ExceptionType))
		fmt.Fprintf(s.w, "Exception code: %d\n", md.ExceptionCode)
		fmt.Fprintf(s.w, "Signal: %d, %s\n", md.Signal, metrickit.SignalName(md.Signal))
		if md.Termination != "" {
			utils.Indent(log.Debug, 2)("Termination reason: " + md.Termination)
		}
		fmt.Fprintln(s.w)
	case metrickit.KindDiskWrite:
		md, err := diag.DiskWriteMetaData()
		if err != nil {
			return err
		}
		s.title(diag.Kind, md.MetaData)
		fmt.Fprintf(s.w, "Writes caused: %s\n", md.WritesCaused)
	case metrickit.KindCPU:
		md, err := diag.CPUMetaData()
		if err != nil {
			return err
		}
		s.title(diag.Kind, md.MetaData)
		fmt.Fprintf(s.w, "Total time: %s of %s\n", md.TotalCPUTime, md.TotalSampledTime)
	case metrickit.KindAppLaunch:
		md, err := diag.AppLaunchMetaData()
		if err != nil {
			return err
		}
		s.title(diag.Kind, md.MetaData)
		fmt.Fprintf(s.w, "Launch duration: %s\n", md.LaunchDuration)
		// launch trees claim to be per thread but are sampled
		forceSpindump = true
	case metrickit.KindHang:
		md, err := diag.HangMetaData()
		if err != nil {
			return err
		}
		s.title(diag.Kind, md.MetaData)
		fmt.Fprintf(s.w, "Hang duration: %s\n", md.HangDuration)
	default:
		return fmt.Errorf("unsupported diagnostic kind %s", diag.Kind)
	}

	log.WithFields(log.Fields{
		"entry":    diag.Entry(),
		"stacks":   len(diag.CallStackTree.CallStacks),
		"device":   rep.DeviceModel,
		"spindump": forceSpindump || !diag.CallStackTree.PerThread,
	}).Debug("Rendering call stack tree")

	if err := s.RenderTree(ctx, &diag.CallStackTree, forceSpindump); err != nil {
		return fmt.Errorf("failed to render %s: %w", diag.Entry(), err)
	}
	return nil
}

func (s *Symbolicator) title(kind metrickit.Kind, md metrickit.MetaData) {
	what := kind.String() + " diagnostic"
	if kind == metrickit.KindCrash {
		what = "crash report"
	}
	fmt.Fprintln(s.w, s.pal.Header(fmt.Sprintf("Symbolicating %s from %s %s.%s", what, md.BundleIdentifier, md.AppVersion, md.AppBuildVersion)))
}

// FormatDate formats t in UTC as an ISO 8601 timestamp with a +00:00 offset.
// Sub-second precision is rounded to the microsecond when present.
func FormatDate(t time.Time) string {
	t = t.UTC().Round(time.Microsecond)
	if t.Nanosecond()/1000 != 0 {
		return t.Format(dateFormatMicro)
	}
	return t.Format(dateFormat)
}
