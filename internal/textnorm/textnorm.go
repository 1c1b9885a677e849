// Package textnorm cleans extracted text before chunking.
//
// Ingestion accepts plain text from arbitrary extraction tools, so
// line endings, byte order marks, and stray NUL bytes vary by source.
// Clean canonicalises them so chunk offsets are stable across
// platforms.
package textnorm

import "strings"

// Clean normalises extracted text: strips a UTF-8 byte order mark,
// converts CRLF and bare CR line endings to LF, and removes NUL bytes.
// The text content itself is left untouched.
func Clean(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	if strings.ContainsAny(text, "\r\x00") {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
		text = strings.ReplaceAll(text, "\x00", "")
	}
	return text
}
