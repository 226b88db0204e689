package harvest

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

const plainReply = `{"summary":"s","tags":["x","y","z"]}`

func TestParseSummary_Accepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "plain", raw: plainReply},
		{name: "surrounding whitespace", raw: "\n  " + plainReply + "  \n"},
		{name: "json fence", raw: "```json\n" + plainReply + "\n```"},
		{name: "bare fence", raw: "```\n" + plainReply + "\n```"},
		{name: "fence without closing line", raw: "```json\n" + plainReply},
		{name: "crlf line endings", raw: "```json\r\n" + plainReply + "\r\n```\r\n"},
		{name: "multi-line body", raw: "```JSON\n{\n  \"summary\": \"s\",\n  \"tags\": [\"x\", \"y\", \"z\"]\n}\n```"},
	}

	want := Summary{Summary: "s", Tags: []string{"x", "y", "z"}}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSummary(tt.raw)
			require.NoError(t, err)
			require.Equal(t, want, got)
			require.NotContains(t, got.Summary, "```")
		})
	}
}

func TestParseSummary_FencedMatchesPlain(t *testing.T) {
	t.Parallel()

	bodies := []string{
		plainReply,
		`{"summary":"Two sentences. About a page.","tags":[]}`,
		`{"summary":"only","tags":["a","b","c","d"],"extra":true}`,
	}
	for _, body := range bodies {
		plain, err := ParseSummary(body)
		require.NoError(t, err)
		fenced, err := ParseSummary("```json\n" + body + "\n```")
		require.NoError(t, err)
		require.Equal(t, plain, fenced)
	}
}

func TestParseSummary_EmptyTagsIsNotNil(t *testing.T) {
	t.Parallel()

	got, err := ParseSummary(`{"summary":"s","tags":[]}`)
	require.NoError(t, err)
	require.NotNil(t, got.Tags)
	require.Empty(t, got.Tags)
}

func TestParseSummary_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "prose", raw: "Sure! Here is a summary.", reason: "not a JSON object"},
		{name: "array", raw: `["s"]`, reason: "not a JSON object"},
		{name: "trailing garbage", raw: plainReply + " thanks", reason: "not a JSON object"},
		{name: "missing summary", raw: `{"tags":["x"]}`, reason: "summary is missing"},
		{name: "empty summary", raw: `{"summary":"  ","tags":["x"]}`, reason: "summary is empty"},
		{name: "null summary", raw: `{"summary":null,"tags":["x"]}`, reason: "summary is empty"},
		{name: "numeric summary", raw: `{"summary":3,"tags":["x"]}`, reason: "summary must be a string"},
		{name: "missing tags", raw: `{"summary":"s"}`, reason: "tags is missing"},
		{name: "null tags", raw: `{"summary":"s","tags":null}`, reason: "tags must be an array of strings"},
		{name: "string tags", raw: `{"summary":"s","tags":"x,y"}`, reason: "tags must be an array of strings"},
		{name: "mixed tags", raw: `{"summary":"s","tags":["x",1]}`, reason: "tags must be an array of strings"},
		{name: "inline fence", raw: "```json " + plainReply + "```", reason: "opening fence line carries content"},
		{name: "fence only", raw: "```", reason: "fenced block has no body"},
		{name: "empty fenced block", raw: "```json\n```", reason: "fenced block has no body"},
		{name: "closing fence glued to body", raw: "```json\n" + plainReply + "```", reason: "not a JSON object"},
		{name: "fence inside summary", raw: "{\"summary\":\"```s```\",\"tags\":[]}", reason: "fence marker"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSummary(tt.raw)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedResponse))
			require.False(t, errors.Is(err, ErrUpstreamModel))
			require.Contains(t, err.Error(), tt.reason)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			require.Equal(t, StageSanitizing, stageErr.Stage)
		})
	}
}

func TestParseSummary_ExcerptIsBounded(t *testing.T) {
	t.Parallel()

	raw := "not json " + strings.Repeat("x", 1000)
	_, err := ParseSummary(raw)
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	_, excerpt, found := strings.Cut(stageErr.Detail, ": ")
	require.True(t, found)
	require.Equal(t, RawExcerptChars, utf8.RuneCountInString(excerpt))
	require.True(t, strings.HasPrefix(excerpt, "not json "))
}
