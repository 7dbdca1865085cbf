package dsym

import (
	"path/filepath"
	"strings"
)

// BinaryName derives the binary name from a symbols path: the file name up
// to its first dot, e.g. MyApp for MyApp.app.dSYM.
func BinaryName(symbolsPath string) string {
	name := filepath.Base(filepath.Clean(symbolsPath))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	name, _, _ = strings.Cut(name, ".")
	return name
}

// SymbolsFile returns the DWARF file to use for binary given a symbols path
// that may be an .xcarchive, a .dSYM bundle or the DWARF file itself.
func SymbolsFile(symbolsPath, binary string) string {
	clean := filepath.Clean(symbolsPath)
	switch strings.ToLower(filepath.Ext(clean)) {
	case ".xcarchive":
		return filepath.Join(clean, "dSYMs", binary+".app.dSYM", "Contents", "Resources", "DWARF", binary)
	case ".dsym":
		return filepath.Join(clean, "Contents", "Resources", "DWARF", binary)
	default:
		return symbolsPath
	}
}
