package media

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxNameBytes = 200

var nameReplacer = strings.NewReplacer(
	"..", "_",
	"/", "_",
	"\\", "_",
	"\x00", "",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"\n", " ",
	"\r", " ",
)

// SanitizeFilename replaces path separators and characters that are unsafe on
// common filesystems or inside a Content-Disposition header.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(nameReplacer.Replace(name))

	if len(name) > maxNameBytes {
		name = name[:maxNameBytes]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}

	if name == "" || name == "." || name == "_" {
		return "download"
	}

	return name
}

// DisplayName builds the attachment name from the media title and the
// extension of the produced file.
func DisplayName(title, path string) string {
	ext := filepath.Ext(path)
	if title == "" {
		return SanitizeFilename(filepath.Base(path))
	}

	return SanitizeFilename(title) + ext
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	r := []rune(s)

	return string(r[:n]) + "..."
}
