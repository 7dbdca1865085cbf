package xcode

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

// Device support folder names look like `iPad13,16 17.1 (21B5045h)`, or
// `17.1 (21B74) arm64e` for older Xcode versions.
var (
	folderRe  = regexp.MustCompile(`^(?:(?P<model>\S+) )?(?P<version>\d+(?:\.\d+)+) \((?P<build>[0-9A-Za-z]+)\)`)
	versionRe = regexp.MustCompile(`\d+(?:\.\d+)+`)
	buildRe   = regexp.MustCompile(`\(([0-9A-Za-z]+)\)`)
)

// DeviceSupport is one folder of Xcode's iOS DeviceSupport directory
type DeviceSupport struct {
	Name    string
	Path    string
	Model   string
	Version *version.Version
	Build   string
}

// SymbolsPath is the root mirroring the device's filesystem
func (d DeviceSupport) SymbolsPath() string {
	return filepath.Join(d.Path, "Symbols")
}

func (d DeviceSupport) String() string {
	if d.Version == nil {
		return d.Name
	}
	if d.Model == "" {
		return fmt.Sprintf("%s (%s)", d.Version.Original(), d.Build)
	}
	return fmt.Sprintf("%s %s (%s)", d.Model, d.Version.Original(), d.Build)
}

// ParseFolderName parses a device support folder name.
// Names that do not follow Xcode's naming keep only Name and Path.
func ParseFolderName(path string) DeviceSupport {
	ds := DeviceSupport{
		Name: filepath.Base(path),
		Path: path,
	}
	m := folderRe.FindStringSubmatch(ds.Name)
	if m == nil {
		return ds
	}
	v, err := version.NewVersion(m[folderRe.SubexpIndex("version")])
	if err != nil {
		return ds
	}
	ds.Model = m[folderRe.SubexpIndex("model")]
	ds.Version = v
	ds.Build = m[folderRe.SubexpIndex("build")]
	return ds
}

// ListDeviceSupport returns every folder in dir, sorted by name
func ListDeviceSupport(dir string) ([]DeviceSupport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var folders []DeviceSupport
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folders = append(folders, ParseFolderName(filepath.Join(dir, entry.Name())))
	}
	return folders, nil
}

// Query selects device support folders for a report
type Query struct {
	OSVersion   string
	DeviceModel string
	// All also returns folders that do not match the OS version (after the matching ones)
	All bool
}

func (q Query) matches(ds DeviceSupport) bool {
	if ds.Version != nil {
		if raw := versionRe.FindString(q.OSVersion); raw != "" {
			if v, err := version.NewVersion(raw); err == nil {
				return v.Equal(ds.Version)
			}
		}
	}
	return q.OSVersion != "" && strings.Contains(ds.Name, q.OSVersion)
}

func (q Query) rank(ds DeviceSupport) int {
	var score int
	if m := buildRe.FindStringSubmatch(q.OSVersion); m != nil && ds.Build != "" && m[1] == ds.Build {
		score += 4
	}
	if q.DeviceModel != "" && ds.Model == q.DeviceModel {
		score += 2
	}
	for _, family := range []string{"iPhone", "iPad"} {
		if strings.HasPrefix(q.DeviceModel, family) && strings.Contains(ds.Name, family) {
			score++
			break
		}
	}
	return score
}

// SelectRoots orders the folders to search for a report's system libraries.
// Folders whose OS version matches come first, ranked by same build, same
// device model and same device family; with q.All the remaining folders follow, newest first.
func SelectRoots(folders []DeviceSupport, q Query) []DeviceSupport {
	var matched, rest []DeviceSupport
	for _, ds := range folders {
		if q.matches(ds) {
			matched = append(matched, ds)
		} else if q.All {
			rest = append(rest, ds)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := q.rank(matched[i]), q.rank(matched[j])
		if ri != rj {
			return ri > rj
		}
		return newer(matched[i], matched[j])
	})
	sort.SliceStable(rest, func(i, j int) bool {
		return newer(rest[i], rest[j])
	})
	return append(matched, rest...)
}

func newer(a, b DeviceSupport) bool {
	switch {
	case a.Version != nil && b.Version != nil && !a.Version.Equal(b.Version):
		return a.Version.GreaterThan(b.Version)
	case a.Version != nil && b.Version == nil:
		return true
	case a.Version == nil && b.Version != nil:
		return false
	}
	return a.Name < b.Name
}
