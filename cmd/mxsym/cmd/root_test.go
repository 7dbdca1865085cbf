package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appUUID = "11111111-2222-3333-4444-555555555555"

const crashJSON = `{
  "customer_id": "cust-42",
  "timestamp": 1700000000,
  "os_version": "17.1",
  "device_model": "iPhone15,2",
  "payload": {
    "crashDiagnostics": [{
      "diagnosticMetaData": {
        "bundleIdentifier": "com.example.App",
        "appVersion": "1.2",
        "appBuildVersion": "345",
        "osVersion": "iPhone OS 17.1 (21B74)",
        "exceptionType": 1,
        "exceptionCode": 0,
        "signal": 11
      },
      "callStackTree": {
        "callStackPerThread": true,
        "callStacks": [{
          "threadAttributed": true,
          "callStackRootFrames": [{
            "binaryName": "MyApp",
            "binaryUUID": "11111111-2222-3333-4444-555555555555",
            "offsetIntoBinaryTextSegment": 256,
            "sampleCount": 1
          }]
        }]
      }
    }]
  }
}`

const launchJSON = `{
  "customer_id": "cust-42",
  "timestamp": 1700000000,
  "os_version": "17.1",
  "device_model": "iPhone15,2",
  "payload": {
    "appLaunchDiagnostics": [{
      "diagnosticMetaData": {
        "bundleIdentifier": "com.example.App",
        "appVersion": "1.2",
        "appBuildVersion": "345",
        "osVersion": "iPhone OS 17.1 (21B74)",
        "launchDuration": "2500 ms"
      },
      "callStackTree": {
        "callStackPerThread": true,
        "callStacks": [{
          "callStackRootFrames": [{
            "binaryName": "MyApp",
            "binaryUUID": "11111111-2222-3333-4444-555555555555",
            "offsetIntoBinaryTextSegment": 16,
            "sampleCount": 5,
            "subFrames": [{
              "binaryName": "MyApp",
              "binaryUUID": "11111111-2222-3333-4444-555555555555",
              "offsetIntoBinaryTextSegment": 32,
              "subFrames": [{
                "binaryName": "UIKitCore",
                "binaryUUID": "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE",
                "offsetIntoBinaryTextSegment": 48,
                "sampleCount": 2
              }]
            }]
          }]
        }]
      }
    }]
  }
}`

type fixture struct {
	dir       string
	dsym      string
	dwarfdump string
	atos      string
	devices   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Setenv("HOME", t.TempDir())

	f := &fixture{dir: t.TempDir()}
	f.dsym = filepath.Join(f.dir, "MyApp.app.dSYM")
	dwarf := filepath.Join(f.dsym, "Contents", "Resources", "DWARF")
	require.NoError(t, os.MkdirAll(dwarf, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dwarf, "MyApp"), []byte("dwarf"), 0o644))

	f.devices = filepath.Join(f.dir, "DeviceSupport")
	require.NoError(t, os.MkdirAll(f.devices, 0o755))

	f.dwarfdump = writeScript(t, f.dir, "dwarfdump", `echo "UUID: `+appUUID+` (arm64) $2"`)
	// echo the offset so tests can tell frames apart
	f.atos = writeScript(t, f.dir, "atos", `echo "frame_$7 (in MyApp) (main.swift:12)"`)
	return f
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func (f *fixture) report(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(f.dir, "report.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func (f *fixture) args(extra ...string) []string {
	return append([]string{
		"--dwarfdump", f.dwarfdump,
		"--atos", f.atos,
		"--device-support", f.devices,
	}, extra...)
}

func resetFlags(c *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootMissingFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := run(t, "--report-path", "report.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
	assert.Empty(t, out)
}

func TestRootSymbolsPathMissing(t *testing.T) {
	f := newFixture(t)
	missing := filepath.Join(f.dir, "Other.xcarchive")

	out, err := run(t, f.args("--report-path", f.report(t, crashJSON), "--symbols-path", missing)...)
	require.NoError(t, err)

	want := filepath.Join(missing, "dSYMs", "Other.app.dSYM", "Contents", "Resources", "DWARF", "Other")
	assert.Equal(t, "Binary name: Other\ndSYM path '"+want+"' does not exist\n", out)
}

func TestRootCrash(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f.args("--report-path", f.report(t, crashJSON), "--symbols-path", f.dsym)...)
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"Binary name: MyApp",
		"UUID of specified dSYM is " + appUUID,
		"Customer ID: cust-42",
		"Date of report on device: 2023-11-14T22:13:20+00:00",
		"Device: iPhone15,2, 17.1",
		"",
		"Symbolicating crash report from com.example.App 1.2.345",
		"Exception type: 1, EXC_BAD_ACCESS",
		"Exception code: 0",
		"Signal: 11, SIGSEGV",
		"",
		"Attributed: Call stack 0:",
		"frame_0x100 (in MyApp) (main.swift:12)",
		"",
		"",
	}, "\n"), out)
}

func keepNoColor(t *testing.T) {
	t.Helper()
	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })
}

func TestRootCLIColorPiped(t *testing.T) {
	f := newFixture(t)
	keepNoColor(t)
	t.Setenv("CLICOLOR", "1")

	out, err := run(t, f.args("--report-path", f.report(t, crashJSON), "--symbols-path", f.dsym)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Attributed: Call stack 0:")
	assert.NotContains(t, out, "\x1b[")
}

func TestRootCLIColorForce(t *testing.T) {
	f := newFixture(t)
	keepNoColor(t)
	t.Setenv("CLICOLOR_FORCE", "1")

	out, err := run(t, f.args("--report-path", f.report(t, crashJSON), "--symbols-path", f.dsym)...)
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[")
}

func TestRootAppLaunch(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f.args("--report-path", f.report(t, launchJSON), "--symbols-path", f.dsym)...)
	require.NoError(t, err)

	assert.Contains(t, out, strings.Join([]string{
		"Symbolicating app launch diagnostic from com.example.App 1.2.345",
		"Launch duration: 2500 ms",
		"Call stack 0:",
		"5: frame_0x10 (in MyApp) (main.swift:12)",
		"|  0: frame_0x20 (in MyApp) (main.swift:12)",
		"|  |  <WARNING, symbols not found> UIKitCore (48)",
		"",
	}, "\n"))
}

func TestRootSystemFrames(t *testing.T) {
	f := newFixture(t)

	uikit := filepath.Join(f.devices, "iPhone15,2 17.1 (21B74)", "Symbols", "System", "Library", "PrivateFrameworks", "UIKitCore.framework")
	require.NoError(t, os.MkdirAll(uikit, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uikit, "UIKitCore"), []byte("macho"), 0o644))
	f.dwarfdump = writeScript(t, f.dir, "dwarfdump", `case "$2" in
*UIKitCore) echo "UUID: AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE (arm64e) $2" ;;
*) echo "UUID: `+appUUID+` (arm64) $2" ;;
esac`)

	out, err := run(t, f.args("--report-path", f.report(t, launchJSON), "--symbols-path", f.dsym)...)
	require.NoError(t, err)

	assert.Contains(t, out, "Found system library path for 17.1 iPhone15,2: "+filepath.Join(f.devices, "iPhone15,2 17.1 (21B74)", "Symbols"))
	assert.Contains(t, out, "|  |  2: frame_0x30 (in MyApp) (main.swift:12)")
}

func TestRootInvalidResolver(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, f.args("--report-path", f.report(t, crashJSON), "--symbols-path", f.dsym, "--resolver", "gdb")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resolver")
}

func TestRootMalformedReport(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, f.args("--report-path", f.report(t, `{"customer_id": "x"}`), "--symbols-path", f.dsym)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")
}

func TestRoots(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"iPhone15,2 17.1 (21B74)", "iPad13,16 17.1 (21B74)", "16.4 (20E247)"} {
		require.NoError(t, os.MkdirAll(filepath.Join(f.devices, name, "Symbols"), 0o755))
	}

	out, err := run(t, "roots", "--device-support", f.devices, "--os-version", "17.1", "--device-model", "iPhone15,2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "MODEL")
	assert.Contains(t, lines[1], "iPhone15,2")
	assert.Contains(t, lines[2], "iPad13,16")
}

func TestLookup(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f.args("lookup", "MyApp", appUUID, "0x100", "--symbols-path", f.dsym)...)
	require.NoError(t, err)
	assert.Equal(t, "frame_0x100 (in MyApp) (main.swift:12)\n", out)

	_, err = run(t, f.args("lookup", "Foundation", appUUID, "16", "--symbols-path", f.dsym)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbols not found")
}

func TestVersion(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Version: dev, BuildCommit: none"))
}
