package dsym

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDwarfdumpUUID(t *testing.T) {
	tests := []struct {
		name   string
		output string
		arch   string
		want   string
	}{
		{
			name:   "thin",
			output: "UUID: 5F2A7C0B-7E29-3B6D-A6E5-1C1F2B0C8F11 (arm64) /tmp/MyApp.app.dSYM/Contents/Resources/DWARF/MyApp\n",
			arch:   "arm64",
			want:   "5F2A7C0B-7E29-3B6D-A6E5-1C1F2B0C8F11",
		},
		{
			name: "universal picks arch",
			output: "UUID: 11111111-1111-1111-1111-111111111111 (arm64) /usr/lib/dyld\n" +
				"UUID: 22222222-2222-2222-2222-222222222222 (arm64e) /usr/lib/dyld\n",
			arch: "arm64e",
			want: "22222222-2222-2222-2222-222222222222",
		},
		{
			name: "universal falls back to first slice",
			output: "UUID: 11111111-1111-1111-1111-111111111111 (x86_64) /usr/lib/dyld\n" +
				"UUID: 22222222-2222-2222-2222-222222222222 (arm64) /usr/lib/dyld\n",
			arch: "arm64e",
			want: "11111111-1111-1111-1111-111111111111",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDwarfdumpUUID("/x", tt.output, tt.arch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDwarfdumpUUIDMalformed(t *testing.T) {
	_, err := ParseDwarfdumpUUID("/x", "error: /x: No such file or directory\n", "arm64")
	var perr *UUIDParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "/x", perr.Path)
}

func TestDwarfdumpMissingTool(t *testing.T) {
	d := Dwarfdump{Path: "mxsym-no-such-dwarfdump"}
	_, err := d.ReadUUID(context.Background(), "/x", "arm64")
	assert.Error(t, err)
}

func TestMachoReadUUIDNotMacho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-macho")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a MachO"), 0o644))

	_, err := Macho{}.ReadUUID(context.Background(), path, "arm64")
	assert.Error(t, err)
}
