// Package symbols demangles Swift and C++ names in resolver output.
package symbols

import (
	"regexp"
	"strings"

	"github.com/blacktop/go-macho/pkg/swift"
	"github.com/ianlancetaylor/demangle"
)

var cxxTokenPattern = regexp.MustCompile(`_{0,2}Z[A-Za-z0-9_]+`)

func demangleCXX(token string) string {
	// Mach-O symbols carry an extra leading underscore (__Z) and
	// cold split functions sometimes lose theirs entirely (Z).
	mangled := "_Z" + strings.TrimLeft(token, "_")[1:]
	if demangled, err := demangle.ToString(mangled); err == nil {
		return demangled
	}
	return token
}

// Demangle expands every Swift and C++ mangled name found in text.
// Anything that does not demangle is left untouched.
func Demangle(text string) string {
	if text == "" {
		return text
	}
	out := swift.DemangleBlob(text)
	return cxxTokenPattern.ReplaceAllStringFunc(out, demangleCXX)
}

// DemangleLines demangles each line of multi-line resolver output, such as
// atos' inlined frames.
func DemangleLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = Demangle(line)
	}
	return strings.Join(lines, "\n")
}
