package dsym

import (
	"context"
	"regexp"
	"time"

	"github.com/blacktop/mxsym/internal/utils"
)

// dwarfdump --uuid prints one line per slice:
//
//	UUID: 5F2A7C0B-7E29-3B6D-A6E5-1C1F2B0C8F11 (arm64) /path/to/binary
var dwarfdumpUUIDRe = regexp.MustCompile(`UUID: ([0-9A-Za-z\-]+?) \((.+?)\)`)

// UUIDReader extracts the UUID of a symbol file
type UUIDReader interface {
	ReadUUID(ctx context.Context, path, arch string) (string, error)
}

// Dwarfdump shells out to `dwarfdump --uuid`
type Dwarfdump struct {
	Path    string
	Timeout time.Duration
}

// ReadUUID returns the UUID of the slice matching arch, or of the first slice
func (d Dwarfdump) ReadUUID(ctx context.Context, path, arch string) (string, error) {
	bin := d.Path
	if bin == "" {
		bin = "dwarfdump"
	}
	out, err := utils.RunCmd(ctx, d.Timeout, bin, "--uuid", path)
	if err != nil {
		return "", err
	}
	return ParseDwarfdumpUUID(path, string(out), arch)
}

// ParseDwarfdumpUUID extracts a UUID from `dwarfdump --uuid` output
func ParseDwarfdumpUUID(path, output, arch string) (string, error) {
	matches := dwarfdumpUUIDRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return "", &UUIDParseError{Path: path, Output: output}
	}
	for _, m := range matches {
		if m[2] == arch {
			return m[1], nil
		}
	}
	return matches[0][1], nil
}
