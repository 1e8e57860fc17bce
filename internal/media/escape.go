package media

import "strings"

var textReplacer = strings.NewReplacer(
	`\`, `\\\\`,
	`'`, "\u2019",
	`:`, `\:`,
	`%`, `\\%`,
)

// EscapeText escapes a value for use inside a single-quoted drawtext text='...' option.
// Straight apostrophes become typographic ones since they cannot appear inside the quotes.
func EscapeText(s string) string {
	return textReplacer.Replace(s)
}

// EscapePath escapes a file path used as a filter option value (fontfile, subtitles).
func EscapePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.ReplaceAll(p, ":", `\:`)
	p = strings.ReplaceAll(p, "'", `\'`)
	return p
}

// ConcatLine renders one entry of an ffmpeg concat demuxer list.
func ConcatLine(path string) string {
	return "file '" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
