package telegram

import "strings"

const ellipsis = "..."

// Truncate shortens s to at most limit runes, ending with "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return string(runes[:limit])
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}

// SplitText cuts text into ordered parts of at most limit runes. A part ends
// after the last newline that fits, or at the rune limit when the window has
// none. Blank text yields no parts, and whitespace-only parts are dropped.
func SplitText(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit <= 0 {
		limit = MaxTextLength
	}
	runes := []rune(text)
	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); {
		end := min(start+limit, len(runes))
		if end < len(runes) {
			for i := end - 1; i > start; i-- {
				if runes[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if part := string(runes[start:end]); strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
		start = end
	}
	return parts
}

// postBodyLimit bounds the post text embedded in a media caption so the
// source link still fits under the caption limit.
const postBodyLimit = 1000

// PostCaption builds the caption placed on the last file of a post: title,
// body cut to postBodyLimit runes, and the source link.
func PostCaption(title, body, link string) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(title)
	}
	if body = strings.TrimSpace(body); body != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(Truncate(body, postBodyLimit))
	}
	appendLink(&b, link)
	return b.String()
}

// PostText builds the message for a text-only post.
func PostText(title, body, link string) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(title)
	}
	if body = strings.TrimSpace(body); body != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(body)
	}
	appendLink(&b, link)
	return b.String()
}

func appendLink(b *strings.Builder, link string) {
	link = strings.TrimSpace(link)
	if link == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("🔗 Source: ")
	b.WriteString(link)
}
