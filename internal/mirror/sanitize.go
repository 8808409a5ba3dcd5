package mirror

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// substitute replaces characters that cannot appear in a single path
// component.
const substitute = "_"

var separatorReplacer = strings.NewReplacer(
	"/", substitute,
	string(filepath.Separator), substitute,
	"\x00", substitute,
)

// Sanitize turns a Drive title into a single local path component. Path
// separators become "_", so "a/b" names one entry "a_b" rather than a nested
// path. Titles are normalized to NFC so the same title always maps to the
// same bytes on disk. "." and ".." cannot escape the parent directory.
// Sibling collisions are not detected.
func Sanitize(title string) string {
	name := separatorReplacer.Replace(norm.NFC.String(title))

	switch name {
	case "", ".":
		return substitute
	case "..":
		return substitute + substitute
	default:
		return name
	}
}
