package harvest

import (
	"encoding/json"
	"errors"
	"strings"
)

const fence = "```"

// ParseSummary extracts the summary and tags from raw model output.
//
// Accepted grammar: an optional opening fence line (``` plus an optional
// language tag), the JSON payload, and an optional closing ``` line. Anything
// else is rejected rather than guessed at.
func ParseSummary(raw string) (Summary, error) {
	payload, err := stripFences(raw)
	if err != nil {
		return Summary{}, malformed(raw, err.Error(), nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Summary{}, malformed(raw, "response is not a JSON object", err)
	}

	summaryRaw, ok := fields["summary"]
	if !ok {
		return Summary{}, malformed(raw, "summary is missing", nil)
	}
	var summary string
	if err := json.Unmarshal(summaryRaw, &summary); err != nil {
		return Summary{}, malformed(raw, "summary must be a string", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return Summary{}, malformed(raw, "summary is empty", nil)
	}
	if strings.Contains(summary, fence) {
		return Summary{}, malformed(raw, "summary contains a fence marker", nil)
	}

	tagsRaw, ok := fields["tags"]
	if !ok {
		return Summary{}, malformed(raw, "tags is missing", nil)
	}
	var tags []string
	if err := json.Unmarshal(tagsRaw, &tags); err != nil {
		return Summary{}, malformed(raw, "tags must be an array of strings", err)
	}
	if tags == nil {
		return Summary{}, malformed(raw, "tags must be an array of strings", nil)
	}

	return Summary{Summary: summary, Tags: tags}, nil
}

func stripFences(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, fence) {
		return text, nil
	}

	first, rest, found := strings.Cut(text, "\n")
	if !isOpeningFence(first) {
		return "", errors.New("opening fence line carries content")
	}
	if !found {
		return "", errors.New("fenced block has no body")
	}

	body := strings.TrimSpace(rest)
	if idx := strings.LastIndex(body, "\n"); idx >= 0 {
		if strings.TrimSpace(body[idx+1:]) == fence {
			body = strings.TrimSpace(body[:idx])
		}
	} else if body == fence {
		body = ""
	}
	if body == "" {
		return "", errors.New("fenced block has no body")
	}
	return body, nil
}

func isOpeningFence(line string) bool {
	line = strings.TrimSpace(line)
	tag, ok := strings.CutPrefix(line, fence)
	if !ok {
		return false
	}
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '+', r == '.':
		default:
			return false
		}
	}
	return true
}

func malformed(raw, reason string, cause error) *StageError {
	detail := reason + ": " + Truncate(strings.TrimSpace(raw), RawExcerptChars)
	return newStageError(StageSanitizing, ErrMalformedResponse, detail, cause)
}
