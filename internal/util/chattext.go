package util

import "strings"

const (
	// SeeMorePadding is enough zero-width runes for the relay client to fold the rest
	// of a message behind its "see more" control.
	SeeMorePadding = 500
	ZeroWidthSpace = "\u200b"
)

// ApplySeeMore puts instruction on the visible first line and folds text below it.
func ApplySeeMore(text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	instruction = strings.TrimSpace(instruction)

	var b strings.Builder
	b.Grow(len(text) + SeeMorePadding*len(ZeroWidthSpace) + len(instruction) + 1)
	b.WriteString(instruction)
	b.WriteString(strings.Repeat(ZeroWidthSpace, SeeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(text)
	return b.String()
}

// StripLeadingHeader removes header from the first line of text if it is repeated there.
func StripLeadingHeader(text, header string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(header) == "" {
		return text
	}
	for _, candidate := range []string{
		header + "\r\n\r\n",
		header + "\n\n",
		header + "\r\n",
		header + "\n",
		header,
	} {
		if strings.HasPrefix(text, candidate) {
			return strings.TrimPrefix(text, candidate)
		}
	}
	return text
}

// ListMessage joins header and lines. Lists longer than foldAfter are folded behind
// the header; foldAfter <= 0 never folds.
func ListMessage(header string, lines []string, foldAfter int) string {
	body := strings.Join(lines, "\n")
	if foldAfter > 0 && len(lines) > foldAfter {
		return ApplySeeMore(StripLeadingHeader(body, header), header)
	}
	if strings.TrimSpace(header) == "" {
		return body
	}
	if body == "" {
		return header
	}
	return header + "\n" + body
}
