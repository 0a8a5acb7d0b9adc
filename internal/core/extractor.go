package core

import (
	"encoding/json"
	"log"
	"strings"
)

// The assistant reply protocol: a reply may carry, usually near the end, a
// single marker-delimited JSON block describing a loggable progress event.
// The block is machine-facing and must never reach the end user.
const (
	progressStartMarker = "[[PROGRESS_LOG]]"
	progressEndMarker   = "[[/PROGRESS_LOG]]"
)

// ExtractedEvent is a parsed-but-unvalidated progress payload. Payload keeps
// the raw JSON; the per-type shape is only decoded at aggregation time so a
// malformed-but-present payload cannot break ingestion.
type ExtractedEvent struct {
	Type    string
	Payload string
}

// ExtractProgress splits an assistant reply into user-visible text and an
// optional embedded progress event.
//
// Missing markers (or an end marker before the start) mean the reply is
// plain prose: it is returned unchanged with no event. A well-delimited but
// unparseable interior is discarded, but the marker span is still stripped
// from the visible text.
func ExtractProgress(raw string) (string, *ExtractedEvent) {
	start := strings.Index(raw, progressStartMarker)
	end := strings.Index(raw, progressEndMarker)
	if start == -1 || end == -1 || end < start {
		return raw, nil
	}

	interior := raw[start+len(progressStartMarker) : end]
	cleaned := collapseAround(raw[:start], raw[end+len(progressEndMarker):])

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(interior), &probe); err != nil {
		log.Printf("Discarding malformed progress payload: %v", err)
		return cleaned, nil
	}

	return cleaned, &ExtractedEvent{
		Type:    probe.Type,
		Payload: strings.TrimSpace(interior),
	}
}

// collapseAround joins the text on either side of the removed marker span,
// collapsing the whitespace the span leaves behind.
func collapseAround(before, after string) string {
	before = strings.TrimRight(before, " \t\r\n")
	after = strings.TrimLeft(after, " \t\r\n")
	switch {
	case before == "":
		return after
	case after == "":
		return before
	default:
		return before + "\n\n" + after
	}
}
