package metrickit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	r, err := Open("testdata/crash.json")
	require.NoError(t, err)

	assert.Equal(t, "cust-42", r.CustomerID)
	assert.Equal(t, "17.1", r.OSVersion)
	assert.Equal(t, "iPhone15,2", r.DeviceModel)
	assert.True(t, r.Timestamp.Equal(time.Unix(1700000000, 0)))
	assert.Equal(t, time.UTC, r.Timestamp.Location())

	require.Len(t, r.Diagnostics[KindCrash], 1)
	require.Len(t, r.Diagnostics[KindAppLaunch], 1)
	assert.Empty(t, r.Diagnostics[KindCPU])

	crash := r.Diagnostics[KindCrash][0]
	assert.Equal(t, "crashDiagnostics[0]", crash.Entry())
	assert.True(t, crash.CallStackTree.PerThread)
	require.Len(t, crash.CallStackTree.CallStacks, 2)
	assert.True(t, crash.CallStackTree.CallStacks[0].ThreadAttributed)
	assert.False(t, crash.CallStackTree.CallStacks[1].ThreadAttributed)

	root := crash.CallStackTree.CallStacks[0].RootFrames[0]
	assert.True(t, root.Complete())
	assert.Equal(t, "App", root.Name())
	assert.Equal(t, uint64(0x100), root.TextOffset())
	assert.Equal(t, 1, root.Samples())
	require.Len(t, root.SubFrames, 1)

	// an offset of zero is still an offset
	sub := root.SubFrames[0]
	assert.True(t, sub.Complete())
	assert.Equal(t, 0, sub.Samples())
}

func TestCrashMetaData(t *testing.T) {
	r, err := Open("testdata/crash.json")
	require.NoError(t, err)

	md, err := r.Diagnostics[KindCrash][0].CrashMetaData()
	require.NoError(t, err)

	assert.Equal(t, "com.example.App", md.BundleIdentifier)
	assert.Equal(t, "1.2", md.AppVersion)
	assert.Equal(t, "345", md.AppBuildVersion)
	assert.Equal(t, 1, md.ExceptionType)
	assert.Equal(t, int64(0), md.ExceptionCode)
	assert.Equal(t, 11, md.Signal)
	assert.Equal(t, "Namespace SIGNAL, Code 11", md.Termination)

	launch, err := r.Diagnostics[KindAppLaunch][0].AppLaunchMetaData()
	require.NoError(t, err)
	assert.Equal(t, "2500 ms", launch.LaunchDuration)
}

func TestMetaDataMissingField(t *testing.T) {
	d := Diagnostic{
		Kind:  KindCPU,
		Index: 2,
		MetaData: map[string]any{
			"bundleIdentifier": "com.example.App",
			"appVersion":       "1.0",
			"appBuildVersion":  "1",
			"osVersion":        "17.1",
			"totalCPUTime":     "90 sec",
		},
	}

	_, err := d.CPUMetaData()
	require.Error(t, err)

	var merr *MalformedReportError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "diagnosticMetaData.totalSampledTime", merr.Field)
	assert.Equal(t, "cpuExceptionDiagnostics[2]", merr.Entry)
	assert.ErrorIs(t, err, ErrMalformedReport)
}

func TestMetaDataWeakTypes(t *testing.T) {
	d := Diagnostic{
		Kind: KindDiskWrite,
		MetaData: map[string]any{
			"bundleIdentifier": "com.example.App",
			"appVersion":       1.5,
			"appBuildVersion":  float64(7),
			"osVersion":        "17.1",
			"writesCaused":     "1,024.00 MB",
		},
	}
	md, err := d.DiskWriteMetaData()
	require.NoError(t, err)
	assert.Equal(t, "1.5", md.AppVersion)
	assert.Equal(t, "7", md.AppBuildVersion)
	assert.Equal(t, "1,024.00 MB", md.WritesCaused)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		field string
		entry string
	}{
		{
			name:  "missing customer id",
			in:    `{"timestamp": 1, "os_version": "17.1", "device_model": "iPhone15,2", "payload": {}}`,
			field: "customer_id",
		},
		{
			name:  "null payload",
			in:    `{"customer_id": "c", "timestamp": 1, "os_version": "17.1", "device_model": "iPhone15,2", "payload": null}`,
			field: "payload",
		},
		{
			name:  "bad timestamp",
			in:    `{"customer_id": "c", "timestamp": "yesterday", "os_version": "17.1", "device_model": "iPhone15,2", "payload": {}}`,
			field: "timestamp",
		},
		{
			name: "missing call stack tree",
			in: `{"customer_id": "c", "timestamp": 1, "os_version": "17.1", "device_model": "iPhone15,2",
				"payload": {"cpuExceptionDiagnostics": [{"diagnosticMetaData": {}}]}}`,
			field: "callStackTree",
			entry: "cpuExceptionDiagnostics[0]",
		},
		{
			name: "missing call stacks",
			in: `{"customer_id": "c", "timestamp": 1, "os_version": "17.1", "device_model": "iPhone15,2",
				"payload": {"hangDiagnostics": [{"diagnosticMetaData": {}, "callStackTree": {"callStackPerThread": false}}]}}`,
			field: "callStackTree.callStacks",
			entry: "hangDiagnostics[0]",
		},
		{
			name: "missing metadata",
			in: `{"customer_id": "c", "timestamp": 1, "os_version": "17.1", "device_model": "iPhone15,2",
				"payload": {"crashDiagnostics": [{}, {"diagnosticMetaData": {}, "callStackTree": {"callStacks": [{"threadAttributed": true}]}}]}}`,
			field: "diagnosticMetaData",
			entry: "crashDiagnostics[0]",
		},
		{
			name: "missing root frames in second stack",
			in: `{"customer_id": "c", "timestamp": 1, "os_version": "17.1", "device_model": "iPhone15,2",
				"payload": {"crashDiagnostics": [{"diagnosticMetaData": {}, "callStackTree": {"callStacks": [{"callStackRootFrames": []}, {}]}}]}}`,
			field: "callStacks[1].callStackRootFrames",
			entry: "crashDiagnostics[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			var merr *MalformedReportError
			require.True(t, errors.As(err, &merr), "expected *MalformedReportError, got %v", err)
			assert.Equal(t, tt.field, merr.Field)
			assert.Equal(t, tt.entry, merr.Entry)
		})
	}
}

func TestParseFractionalTimestamp(t *testing.T) {
	r, err := Parse([]byte(`{"customer_id": 7, "timestamp": 1700000000.5, "os_version": "17.1", "device_model": "iPad13,16", "payload": {}}`))
	require.NoError(t, err)
	assert.Equal(t, "7", r.CustomerID)
	assert.Equal(t, 500*time.Millisecond, time.Duration(r.Timestamp.Nanosecond()))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "EXC_BAD_ACCESS", ExceptionTypeName(1))
	assert.Equal(t, "EXC_CORPSE_NOTIFY", ExceptionTypeName(13))
	assert.Equal(t, "unknown", ExceptionTypeName(99))
	assert.Equal(t, "SIGSEGV", SignalName(11))
	assert.Equal(t, "SIGPOLL / SIGEMT", SignalName(7))
	assert.Equal(t, "unknown", SignalName(0))
}
