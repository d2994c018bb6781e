package ingest

import (
	"strings"
)

const (
	acceptToken = "YES"
	rejectToken = "NO"

	// PlaceholderTag is used when an accepting verdict carries no usable
	// tag line
	PlaceholderTag = "meme:unsorted"
)

// Verdict is the parsed classifier decision
type Verdict struct {
	Accepted bool
	TagText  string
}

// ParseVerdict interprets raw classifier output. The expected grammar is
// either "NO" or "YES" followed by a newline and a "<label>:<usage>" line.
// An accepting verdict is honored even when the tag line is missing or has
// no separator; the tag falls back to a placeholder instead of rejecting
// the item. Anything that does not start with the acceptance token rejects.
func ParseVerdict(raw string) Verdict {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, acceptToken) {
		return Verdict{}
	}

	rest := strings.TrimPrefix(raw, acceptToken)
	// Some models emit "YES|tag" or "YES: tag" instead of a newline
	rest = strings.TrimLeft(rest, " \t|:：")

	tagLine, _, _ := strings.Cut(rest, "\n")
	if tagLine == "" {
		// Tag may be on the following line instead
		_, below, _ := strings.Cut(rest, "\n")
		tagLine, _, _ = strings.Cut(below, "\n")
	}
	tagLine = strings.TrimSpace(tagLine)

	if tagLine == "" || !strings.ContainsAny(tagLine, ":：") {
		return Verdict{Accepted: true, TagText: PlaceholderTag}
	}

	return Verdict{Accepted: true, TagText: tagLine}
}
