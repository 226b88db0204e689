package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type requestPayload struct {
	URL     *string `json:"url"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// DecodeRequest reads one JSON request body and checks its shape. All three
// keys must be present and hold strings; only url has to be non-empty.
func DecodeRequest(r io.Reader) (Request, error) {
	var p requestPayload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return Request{}, newStageError(StageValidating, ErrValidation, describeDecodeError(err), err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Request{}, newStageError(StageValidating, ErrValidation, "request body must contain a single JSON object", err)
	}
	switch {
	case p.URL == nil:
		return Request{}, newStageError(StageValidating, ErrValidation, "url is required", nil)
	case p.Title == nil:
		return Request{}, newStageError(StageValidating, ErrValidation, "title is required", nil)
	case p.Content == nil:
		return Request{}, newStageError(StageValidating, ErrValidation, "content is required", nil)
	}
	req := Request{URL: *p.URL, Title: *p.Title, Content: *p.Content}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate enforces the request contract. It has no side effects.
func (r Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return newStageError(StageValidating, ErrValidation, "url must be a non-empty string", nil)
	}
	return nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return "request body must be a JSON object"
		}
		return fmt.Sprintf("%s must be a string", typeErr.Field)
	}
	if errors.Is(err, io.EOF) {
		return "request body is empty"
	}
	return "invalid JSON body: " + err.Error()
}
