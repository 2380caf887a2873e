package filestore

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	// Device names Windows refuses to open as regular files.
	reservedNames = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true,
		"LPT1": true, "LPT2": true, "LPT3": true,
	}
)

// SanitizeName reduces an uploaded filename to a flat, ASCII-only name that
// is safe to join onto a storage path. Accents are folded, path separators
// become word breaks, runs of whitespace become a single underscore and
// leading/trailing dots and underscores are removed. The result may be
// empty, which callers must treat as an invalid name.
func SanitizeName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = folded
	}

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	if base, _, _ := strings.Cut(name, "."); reservedNames[strings.ToUpper(base)] {
		name = "_" + name
	}
	return name
}

// validSegment reports whether s can be used as one path element under the
// storage root without escaping it.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}
