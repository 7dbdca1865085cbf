package dsym

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var swiftLibRe = regexp.MustCompile(`^libswift.*\.dylib$`)

// fontServiceLibs live in FontServices.framework instead of usr/lib
var fontServiceLibs = []string{
	"libFontParser.dylib",
	"libGSFont.dylib",
	"libGSFontCache.dylib",
	"libTrueTypeScaler.dylib",
	"libType1Scaler.dylib",
	"libType42Scaler.dylib",
}

// Candidate is a possible location of a binary's symbols.
// Rooted candidates are relative to a device support Symbols folder.
type Candidate struct {
	Path   string
	Rooted bool
	Arch   string
	Rule   string
}

// Rule maps binary names to candidate symbol locations
type Rule struct {
	Name  string
	Match func(binary string) bool
	Paths func(binary string) []string
	// Final stops evaluation of lower priority rules once this one matches
	Final bool
	// Absolute paths are not joined with a device support root
	Absolute bool
}

// DefaultRules returns the candidate rules, in priority order, for a target
// binary whose symbols live at symbolsPath.
func DefaultRules(target, symbolsPath string) []Rule {
	return []Rule{
		{
			Name:     "target",
			Match:    func(bin string) bool { return target != "" && bin == target },
			Paths:    func(string) []string { return []string{symbolsPath} },
			Final:    true,
			Absolute: true,
		},
		{
			Name:  "swift",
			Match: swiftLibRe.MatchString,
			Paths: func(bin string) []string { return []string{"usr/lib/swift/" + bin} },
		},
		{
			Name:  "fonts",
			Match: func(bin string) bool { return slices.Contains(fontServiceLibs, bin) },
			Paths: func(bin string) []string {
				return []string{"System/Library/PrivateFrameworks/FontServices.framework/" + bin}
			},
			Final: true,
		},
		{
			Name: "dylib",
			Match: func(bin string) bool {
				return strings.HasPrefix(bin, "lib") && strings.HasSuffix(bin, ".dylib")
			},
			Paths: func(bin string) []string {
				return []string{"usr/lib/system/" + bin, "usr/lib/" + bin}
			},
			Final: true,
		},
		{
			Name:  "dyld",
			Match: func(bin string) bool { return bin == "dyld" },
			Paths: func(string) []string { return []string{"usr/lib/dyld"} },
			Final: true,
		},
		{
			Name:  "framework",
			Match: func(string) bool { return true },
			Paths: func(bin string) []string {
				return []string{
					fmt.Sprintf("System/Library/Frameworks/%[1]s.framework/%[1]s", bin),
					fmt.Sprintf("System/Library/Frameworks/%[1]s.framework/Versions/A/%[1]s", bin),
					fmt.Sprintf("System/Library/PrivateFrameworks/%[1]s.framework/%[1]s", bin),
					fmt.Sprintf("System/Library/AccessibilityBundles/%[1]s.bundle/%[1]s", bin),
					fmt.Sprintf("System/Library/AccessibilityBundles/%[1]s.axbundle/%[1]s", bin),
				}
			},
			Final: true,
		},
	}
}

// Candidates evaluates rules in order and returns the candidate locations for binary
func Candidates(rules []Rule, binary, arch, systemArch string) []Candidate {
	var out []Candidate
	for _, rule := range rules {
		if !rule.Match(binary) {
			continue
		}
		for _, p := range rule.Paths(binary) {
			c := Candidate{Path: p, Rooted: !rule.Absolute, Rule: rule.Name, Arch: systemArch}
			if rule.Absolute {
				c.Arch = arch
			}
			out = append(out, c)
		}
		if rule.Final {
			break
		}
	}
	return out
}
