package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// ParsePayload decodes a webhook body. JSON bodies use the Input field
// names; text bodies become the verbatim as is. An empty content type is
// sniffed.
func ParsePayload(contentType string, body []byte) (Input, error) {
	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return Input{}, fmt.Errorf("%w: content type %q", ErrInvalidInput, contentType)
		}
		mediaType = mt
	}
	if mediaType == "" {
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
			mediaType = "application/json"
		} else {
			mediaType = "text/plain"
		}
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var in Input
		dec := json.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&in); err != nil {
			return Input{}, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidInput, err)
		}
		if strings.TrimSpace(in.Verbatim) == "" {
			return Input{}, fmt.Errorf("%w: verbatim is required", ErrInvalidInput)
		}
		return in, nil
	case strings.HasPrefix(mediaType, "text/"):
		text := strings.TrimSpace(string(body))
		if text == "" {
			return Input{}, fmt.Errorf("%w: empty body", ErrInvalidInput)
		}
		return Input{Verbatim: text}, nil
	default:
		return Input{}, fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, mediaType)
	}
}
