// internal/util/util.go
package util

import (
	"os"
	"strings"
	"unicode/utf8"
)

const fence = "```"

// WriteFile writes data to a file with 0o644 permissions.
func WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// StripCodeFences removes a markdown code fence wrapped around a complete model
// response. The opening fence line, including any language tag, and a trailing
// closing fence are dropped. Text that does not start with a fence is returned
// unchanged.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, fence) {
		return text
	}

	body := trimmed[len(fence):]
	newline := strings.IndexByte(body, '\n')
	if newline < 0 {
		// Single line: ```content``` or a bare opening fence.
		body = strings.TrimSuffix(body, fence)
		return strings.TrimSpace(body)
	}

	body = body[newline+1:]
	if strings.HasSuffix(body, fence) {
		body = strings.TrimSuffix(body, fence)
		body = strings.TrimSuffix(body, "\n")
		body = strings.TrimSuffix(body, "\r")
	}
	return body
}

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// WrapToWidth wraps the given text to a specified width, breaking long words.
func WrapToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			out = append(out, "")
			continue
		}
		var cur strings.Builder
		runeCount := 0
		words := strings.Fields(line)
		for wi, w := range words {
			space := 0
			if wi > 0 {
				space = 1
			}
			wLen := utf8.RuneCountInString(w)
			if runeCount+space+wLen <= width {
				if wi > 0 && runeCount > 0 {
					cur.WriteByte(' ')
					runeCount++
				}
				cur.WriteString(w)
				runeCount += wLen
				continue
			}
			if runeCount > 0 {
				out = append(out, cur.String())
				cur.Reset()
				runeCount = 0
			}
			if wLen <= width {
				cur.WriteString(w)
				runeCount = wLen
			} else {
				r := []rune(w)
				for start := 0; start < len(r); start += width {
					end := start + width
					if end > len(r) {
						end = len(r)
					}
					out = append(out, string(r[start:end]))
				}
			}
		}
		if cur.Len() > 0 {
			out = append(out, cur.String())
		} else if len(words) == 0 {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}

// MaskSecret hides all but the last four characters of a credential.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "(not set)"
	}
	if utf8.RuneCountInString(secret) <= 4 {
		return "****"
	}
	runes := []rune(secret)
	return "****" + string(runes[len(runes)-4:])
}
