package dsym

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/go-macho"
)

// OpenMacho opens a thin or universal MachO. For universal files the slice
// matching arch is returned, falling back to the first slice.
// The returned func closes the underlying file.
func OpenMacho(path, arch string) (*macho.File, func() error, error) {
	fat, err := macho.OpenFat(path)
	if err != nil {
		if !errors.Is(err, macho.ErrNotFat) {
			return nil, nil, fmt.Errorf("failed to open MachO %s: %w", path, err)
		}
		m, err := macho.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open MachO %s: %w", path, err)
		}
		return m, m.Close, nil
	}

	if len(fat.Arches) == 0 {
		fat.Close()
		return nil, nil, fmt.Errorf("universal MachO %s has no slices", path)
	}
	for _, farch := range fat.Arches {
		fields := strings.Fields(strings.ToLower(farch.SubCPU.String(farch.CPU)))
		if len(fields) > 0 && fields[0] == strings.ToLower(arch) {
			return farch.File, fat.Close, nil
		}
	}
	return fat.Arches[0].File, fat.Close, nil
}

// Macho reads LC_UUID directly from the MachO (or dSYM DWARF companion)
type Macho struct{}

// ReadUUID returns the file's UUID formatted like dwarfdump does
func (Macho) ReadUUID(_ context.Context, path, arch string) (string, error) {
	m, closeFn, err := OpenMacho(path, arch)
	if err != nil {
		return "", err
	}
	defer closeFn()

	u := m.UUID()
	if u == nil {
		return "", fmt.Errorf("%s has no LC_UUID load command", path)
	}
	return strings.ToUpper(u.String()), nil
}
