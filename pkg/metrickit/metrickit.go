package metrickit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cast"
)

// REFERENCES:
//     - https://developer.apple.com/documentation/metrickit/mxdiagnosticpayload
//     - https://developer.apple.com/documentation/metrickit/mxcallstacktree

// Kind is the kind of a MetricKit diagnostic
type Kind int

const (
	KindCrash Kind = iota
	KindDiskWrite
	KindCPU
	KindAppLaunch
	KindHang
)

// Kinds lists every diagnostic kind in the order they are symbolicated
var Kinds = []Kind{KindCrash, KindDiskWrite, KindCPU, KindAppLaunch, KindHang}

func (k Kind) String() string {
	switch k {
	case KindCrash:
		return "crash"
	case KindDiskWrite:
		return "disk write exception"
	case KindCPU:
		return "CPU exception"
	case KindAppLaunch:
		return "app launch"
	case KindHang:
		return "hang"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// PayloadKey is the key of the kind's diagnostics array in the report payload
func (k Kind) PayloadKey() string {
	switch k {
	case KindCrash:
		return "crashDiagnostics"
	case KindDiskWrite:
		return "diskWriteExceptionDiagnostics"
	case KindCPU:
		return "cpuExceptionDiagnostics"
	case KindAppLaunch:
		return "appLaunchDiagnostics"
	case KindHang:
		return "hangDiagnostics"
	default:
		return ""
	}
}

// Report is a MetricKit diagnostic report as uploaded by the app
type Report struct {
	CustomerID  string
	Timestamp   time.Time
	OSVersion   string
	DeviceModel string
	Diagnostics map[Kind][]Diagnostic
}

// Diagnostic is a single entry of one of the payload's diagnostic arrays
type Diagnostic struct {
	Kind          Kind
	Index         int
	MetaData      map[string]any
	CallStackTree CallStackTree
}

// Entry names the diagnostic inside its report, e.g. crashDiagnostics[0]
func (d *Diagnostic) Entry() string {
	return fmt.Sprintf("%s[%d]", d.Kind.PayloadKey(), d.Index)
}

// CallStackTree is the MXCallStackTree of a diagnostic
type CallStackTree struct {
	// PerThread is true when every root frame is one linear stack (crash style),
	// false when stacks are overlapping samples (spindump style)
	PerThread  bool
	CallStacks []CallStack
}

// CallStack is one thread's stack
type CallStack struct {
	ThreadAttributed bool
	RootFrames       []Frame
}

// Frame is a node of the call stack tree
type Frame struct {
	BinaryName  *string `json:"binaryName,omitempty"`
	BinaryUUID  *string `json:"binaryUUID,omitempty"`
	Offset      *uint64 `json:"offsetIntoBinaryTextSegment,omitempty"`
	SampleCount *int    `json:"sampleCount,omitempty"`
	SubFrames   []Frame `json:"subFrames,omitempty"`
}

// Complete reports whether the frame has everything needed to symbolicate it
func (f *Frame) Complete() bool {
	return f.Offset != nil && f.BinaryName != nil && *f.BinaryName != "" && f.BinaryUUID != nil && *f.BinaryUUID != ""
}

// Name returns the binary name or an empty string
func (f *Frame) Name() string {
	if f.BinaryName == nil {
		return ""
	}
	return *f.BinaryName
}

// UUID returns the binary UUID or an empty string
func (f *Frame) UUID() string {
	if f.BinaryUUID == nil {
		return ""
	}
	return *f.BinaryUUID
}

// TextOffset returns the offset into the binary's __TEXT segment or 0
func (f *Frame) TextOffset() uint64 {
	if f.Offset == nil {
		return 0
	}
	return *f.Offset
}

// Samples returns the sample count or 0 when the frame has none
func (f *Frame) Samples() int {
	if f.SampleCount == nil {
		return 0
	}
	return *f.SampleCount
}

type rawStack struct {
	ThreadAttributed *bool   `json:"threadAttributed"`
	RootFrames       []Frame `json:"callStackRootFrames"`
}

type rawTree struct {
	PerThread  *bool             `json:"callStackPerThread"`
	CallStacks []json.RawMessage `json:"callStacks"`
}

type rawDiagnostic struct {
	MetaData      map[string]any  `json:"diagnosticMetaData"`
	CallStackTree json.RawMessage `json:"callStackTree"`
}

// Open opens the named file and parses it as a MetricKit report
func Open(name string) (*Report, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a MetricKit report.
// Missing required fields are returned as a *MalformedReportError.
func Parse(data []byte) (*Report, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &MalformedReportError{Err: err}
	}

	for _, field := range []string{"customer_id", "timestamp", "os_version", "device_model", "payload"} {
		if v, ok := top[field]; !ok || isNull(v) {
			return nil, &MalformedReportError{Field: field}
		}
	}

	r := &Report{Diagnostics: make(map[Kind][]Diagnostic)}

	var err error
	if r.CustomerID, err = stringField(top, "customer_id"); err != nil {
		return nil, err
	}
	if r.OSVersion, err = stringField(top, "os_version"); err != nil {
		return nil, err
	}
	if r.DeviceModel, err = stringField(top, "device_model"); err != nil {
		return nil, err
	}

	var ts any
	if err := json.Unmarshal(top["timestamp"], &ts); err != nil {
		return nil, &MalformedReportError{Field: "timestamp", Err: err}
	}
	secs, err := cast.ToFloat64E(ts)
	if err != nil {
		return nil, &MalformedReportError{Field: "timestamp", Err: err}
	}
	whole, frac := math.Modf(secs)
	r.Timestamp = time.Unix(int64(whole), int64(frac*1e9)).UTC()

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(top["payload"], &payload); err != nil {
		return nil, &MalformedReportError{Field: "payload", Err: err}
	}

	for _, kind := range Kinds {
		raw, ok := payload[kind.PayloadKey()]
		if !ok || isNull(raw) {
			continue
		}
		var entries []rawDiagnostic
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, &MalformedReportError{Field: "payload." + kind.PayloadKey(), Err: err}
		}
		diags := make([]Diagnostic, 0, len(entries))
		for idx, entry := range entries {
			diag := Diagnostic{Kind: kind, Index: idx, MetaData: entry.MetaData}
			if entry.MetaData == nil {
				return nil, &MalformedReportError{Field: "diagnosticMetaData", Entry: diag.Entry()}
			}
			if diag.CallStackTree, err = parseTree(entry.CallStackTree, diag.Entry()); err != nil {
				return nil, err
			}
			diags = append(diags, diag)
		}
		r.Diagnostics[kind] = diags
	}

	return r, nil
}

func parseTree(data json.RawMessage, entry string) (CallStackTree, error) {
	var tree CallStackTree

	if len(data) == 0 || isNull(data) {
		return tree, &MalformedReportError{Field: "callStackTree", Entry: entry}
	}
	var raw rawTree
	if err := json.Unmarshal(data, &raw); err != nil {
		return tree, &MalformedReportError{Field: "callStackTree", Entry: entry, Err: err}
	}
	if raw.CallStacks == nil {
		return tree, &MalformedReportError{Field: "callStackTree.callStacks", Entry: entry}
	}
	if raw.PerThread != nil {
		tree.PerThread = *raw.PerThread
	}

	for idx, rs := range raw.CallStacks {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rs, &fields); err != nil {
			return tree, &MalformedReportError{Field: fmt.Sprintf("callStacks[%d]", idx), Entry: entry, Err: err}
		}
		if _, ok := fields["callStackRootFrames"]; !ok {
			return tree, &MalformedReportError{Field: fmt.Sprintf("callStacks[%d].callStackRootFrames", idx), Entry: entry}
		}
		var stack rawStack
		if err := json.Unmarshal(rs, &stack); err != nil {
			return tree, &MalformedReportError{Field: fmt.Sprintf("callStacks[%d]", idx), Entry: entry, Err: err}
		}
		cs := CallStack{RootFrames: stack.RootFrames}
		if stack.ThreadAttributed != nil {
			cs.ThreadAttributed = *stack.ThreadAttributed
		}
		tree.CallStacks = append(tree.CallStacks, cs)
	}

	return tree, nil
}

func stringField(top map[string]json.RawMessage, field string) (string, error) {
	var v any
	if err := json.Unmarshal(top[field], &v); err != nil {
		return "", &MalformedReportError{Field: field, Err: err}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", &MalformedReportError{Field: field, Err: err}
	}
	return s, nil
}

func isNull(data json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
