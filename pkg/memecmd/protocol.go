// Package memecmd implements the embedded marker protocol that lets the
// reply generator request a meme insertion inside otherwise free text.
package memecmd

import (
	"strings"

	"github.com/wenli/memekeeper/pkg/store"
)

// Marker is the textual directive the generator embeds to request a meme.
// Everything after the marker up to the first line break names the meme.
const Marker = "SEND_MEME:"

// SegmentKind discriminates output segments
type SegmentKind int

const (
	// SegmentText is a plain text portion of the reply
	SegmentText SegmentKind = iota
	// SegmentMedia is a resolved meme to insert
	SegmentMedia
)

// Segment is one ordered piece of the rewritten output
type Segment struct {
	Kind   SegmentKind
	Text   string
	Record *store.Record
}

// Resolver maps a request descriptor to a meme record
type Resolver interface {
	MatchFuzzy(query string) (*store.Record, bool)
}

// bracket pairs a generator sometimes wraps the descriptor in by accident
var bracketPairs = [][2]string{
	{"[", "]"},
	{"(", ")"},
	{"【", "】"},
	{"（", "）"},
}

// Rewrite parses generator output and returns the ordered segments to
// deliver. Text without the marker passes through as a single text segment.
// The marker itself never appears in any returned segment; an unresolved
// descriptor degrades to text-only output.
func Rewrite(text string, resolver Resolver) []Segment {
	idx := strings.Index(text, Marker)
	if idx < 0 {
		return []Segment{{Kind: SegmentText, Text: text}}
	}

	preText := strings.TrimRight(text[:idx], " \t")
	rest := text[idx+len(Marker):]

	descriptor, postText, _ := strings.Cut(rest, "\n")
	descriptor = stripBrackets(strings.TrimSpace(descriptor))

	var segments []Segment
	if preText != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: preText})
	}

	if descriptor != "" && resolver != nil {
		if rec, ok := resolver.MatchFuzzy(descriptor); ok {
			segments = append(segments, Segment{Kind: SegmentMedia, Record: rec})
		}
	}

	// A repeated marker is malformed; everything from it on is discarded so
	// protocol syntax never reaches the consumer
	if again := strings.Index(postText, Marker); again >= 0 {
		postText = postText[:again]
	}
	if postText = strings.TrimSpace(postText); postText != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: postText})
	}

	return segments
}

// stripBrackets removes one accidental surrounding bracket pair
func stripBrackets(s string) string {
	for _, pair := range bracketPairs {
		if strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) && len(s) > len(pair[0])+len(pair[1]) {
			return strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
		}
	}
	return s
}

// PlainText joins the text segments, used when the delivery surface cannot
// interleave media
func PlainText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Kind != SegmentText {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
