package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Verdict
	}{
		{
			name: "rejection",
			raw:  "NO",
			want: Verdict{},
		},
		{
			name: "rejection with commentary",
			raw:  "NO\nthis is just a screenshot",
			want: Verdict{},
		},
		{
			name: "canonical acceptance",
			raw:  "YES\ndoggo:send when something is wholesome",
			want: Verdict{Accepted: true, TagText: "doggo:send when something is wholesome"},
		},
		{
			name: "acceptance with surrounding whitespace",
			raw:  "  YES\n  doggo:wholesome  \n",
			want: Verdict{Accepted: true, TagText: "doggo:wholesome"},
		},
		{
			name: "pipe separator variant",
			raw:  "YES|doggo:wholesome",
			want: Verdict{Accepted: true, TagText: "doggo:wholesome"},
		},
		{
			name: "bare acceptance falls back to placeholder",
			raw:  "YES",
			want: Verdict{Accepted: true, TagText: PlaceholderTag},
		},
		{
			name: "missing separator falls back to placeholder",
			raw:  "YES\njust some words",
			want: Verdict{Accepted: true, TagText: PlaceholderTag},
		},
		{
			name: "fullwidth separator is honored",
			raw:  "YES\n狗狗：可爱的时候发",
			want: Verdict{Accepted: true, TagText: "狗狗：可爱的时候发"},
		},
		{
			name: "empty output rejects",
			raw:  "",
			want: Verdict{},
		},
		{
			name: "unrelated output rejects",
			raw:  "I cannot classify this image.",
			want: Verdict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.raw))
		})
	}
}
