package harvest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    Request
		wantErr string
	}{
		{
			name: "valid",
			body: `{"url":"http://a","title":"A","content":"hello"}`,
			want: Request{URL: "http://a", Title: "A", Content: "hello"},
		},
		{
			name: "empty title and content allowed",
			body: `{"url":"http://a","title":"","content":""}`,
			want: Request{URL: "http://a"},
		},
		{
			name: "extra keys ignored",
			body: `{"url":"http://a","title":"A","content":"c","favicon":"x"}`,
			want: Request{URL: "http://a", Title: "A", Content: "c"},
		},
		{name: "missing url", body: `{"title":"A","content":"c"}`, wantErr: "url is required"},
		{name: "null url", body: `{"url":null,"title":"A","content":"c"}`, wantErr: "url is required"},
		{name: "empty url", body: `{"url":"","title":"A","content":"c"}`, wantErr: "url must be a non-empty string"},
		{name: "blank url", body: `{"url":"   ","title":"A","content":"c"}`, wantErr: "url must be a non-empty string"},
		{name: "numeric url", body: `{"url":42,"title":"A","content":"c"}`, wantErr: "url must be a string"},
		{name: "missing title", body: `{"url":"http://a","content":"c"}`, wantErr: "title is required"},
		{name: "array title", body: `{"url":"http://a","title":["A"],"content":"c"}`, wantErr: "title must be a string"},
		{name: "missing content", body: `{"url":"http://a","title":"A"}`, wantErr: "content is required"},
		{name: "not an object", body: `["http://a"]`, wantErr: "request body must be a JSON object"},
		{name: "invalid json", body: `{"url":`, wantErr: "invalid JSON body"},
		{name: "empty body", body: ``, wantErr: "request body is empty"},
		{
			name:    "trailing garbage",
			body:    `{"url":"http://a","title":"","content":""} junk`,
			wantErr: "request body must contain a single JSON object",
		},
		{
			name:    "second object",
			body:    `{"url":"http://a","title":"","content":""}{"url":"http://b"}`,
			wantErr: "request body must contain a single JSON object",
		},
		{
			name: "trailing whitespace allowed",
			body: "{\"url\":\"http://a\",\"title\":\"\",\"content\":\"\"}\n\t ",
			want: Request{URL: "http://a"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeRequest(strings.NewReader(tt.body))
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrValidation))
			require.Contains(t, err.Error(), tt.wantErr)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			require.Equal(t, StageValidating, stageErr.Stage)
		})
	}
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Request{URL: "http://a"}.Validate())
	err := Request{Title: "A", Content: "c"}.Validate()
	require.ErrorIs(t, err, ErrValidation)
}
