// Package webhook receives arbitrary inbound HTTP calls, normalizes their
// payloads and turns them into contact updates and automation runs.
package webhook

import (
	"bytes"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// ParseBody normalizes a raw request body into a map. JSON objects parse as
// is; JSON arrays are kept under "events" so the caller can detect batches;
// form-encoded and multipart bodies become flat key/value maps. Anything
// unparseable falls back to {"raw": <string>} so no payload is ever lost.
func ParseBody(body []byte, contentType string) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.Contains(mediaType, "json"):
		if parsed, ok := parseJSON(body); ok {
			return parsed
		}
	case mediaType == "application/x-www-form-urlencoded":
		if parsed, ok := parseForm(body); ok {
			return parsed
		}
	case strings.HasPrefix(mediaType, "multipart/"):
		if parsed, ok := parseMultipart(body, params["boundary"]); ok {
			return parsed
		}
	default:
		// Senders frequently post JSON with a missing or wrong content type.
		if parsed, ok := parseJSON(body); ok {
			return parsed
		}
	}

	return map[string]any{"raw": string(body)}
}

func parseJSON(body []byte) (map[string]any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}

	switch trimmed[0] {
	case '{':
		var parsed map[string]any
		if err := json.Unmarshal(trimmed, &parsed); err != nil {
			return nil, false
		}

		return parsed, true
	case '[':
		var parsed []any
		if err := json.Unmarshal(trimmed, &parsed); err != nil {
			return nil, false
		}

		return map[string]any{"events": parsed}, true
	default:
		return nil, false
	}
}

func parseForm(body []byte) (map[string]any, bool) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, false
	}

	parsed := make(map[string]any, len(values))

	for key, vals := range values {
		if len(vals) == 1 {
			parsed[key] = vals[0]
		} else {
			parsed[key] = vals
		}
	}

	return parsed, true
}

func parseMultipart(body []byte, boundary string) (map[string]any, bool) {
	if boundary == "" {
		return nil, false
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)

	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		return nil, false
	}

	defer func() { _ = form.RemoveAll() }()

	parsed := make(map[string]any, len(form.Value))

	for key, vals := range form.Value {
		if len(vals) == 1 {
			parsed[key] = vals[0]
		} else {
			parsed[key] = vals
		}
	}

	return parsed, true
}

// Events splits a parsed payload into its logical events. A body that parsed
// as a JSON array becomes one event per object element; everything else is a
// single event.
func Events(payload map[string]any) []map[string]any {
	raw, ok := payload["events"]
	if !ok {
		return []map[string]any{payload}
	}

	list, ok := raw.([]any)
	if !ok {
		return []map[string]any{payload}
	}

	events := make([]map[string]any, 0, len(list))

	for _, item := range list {
		if event, ok := item.(map[string]any); ok {
			events = append(events, event)
		} else {
			events = append(events, map[string]any{"value": item})
		}
	}

	return events
}
