package sse

import "github.com/tidwall/gjson"

// Extractor pulls a Delta out of one decoded JSON payload.
type Extractor interface {
	Extract(payload string) (Delta, bool)
}

// PathExtractor matches a non-empty string at a gjson path.
type PathExtractor struct {
	Path string
	Mode Mode
}

// Extract implements Extractor.
func (e PathExtractor) Extract(payload string) (Delta, bool) {
	v := gjson.Get(payload, e.Path)
	if v.Type != gjson.String || v.Str == "" {
		return Delta{}, false
	}
	return Delta{Text: v.Str, Mode: e.Mode}, true
}

// DefaultExtractors lists the dialects understood out of the box, highest
// priority first. A full message.content replaces the accumulated text; every
// other shape appends.
var DefaultExtractors = []Extractor{
	PathExtractor{Path: "choices.0.delta.content", Mode: ModeAppend},
	PathExtractor{Path: "choices.0.message.content", Mode: ModeReplace},
	PathExtractor{Path: "choices.0.text", Mode: ModeAppend},
	PathExtractor{Path: "delta.content", Mode: ModeAppend},
	PathExtractor{Path: "content", Mode: ModeAppend},
}

// extract tries each extractor in order and returns the first match.
func extract(extractors []Extractor, payload string) (Delta, bool) {
	for _, e := range extractors {
		if d, ok := e.Extract(payload); ok {
			return d, true
		}
	}
	return Delta{}, false
}
