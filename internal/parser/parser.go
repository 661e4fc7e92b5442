// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package parser turns an LLM's XML-ish response text into the
// structured observations and session summaries the session store
// persists. Both entry points are pure and total: malformed or absent
// XML never returns an error, only an empty or nil result, because a
// parse failure here must look exactly like "the model said nothing
// useful" to the caller, not like a transport or storage fault.
package parser

import (
	"encoding/xml"
	"strings"

	"github.com/claude-mem/daemon/internal/sessionstore"
)

type observationsDocument struct {
	Observations []observationElement `xml:"observation"`
}

type observationElement struct {
	Type          string `xml:"type"`
	Title         string `xml:"title"`
	Subtitle      string `xml:"subtitle"`
	Narrative     string `xml:"narrative"`
	Facts         string `xml:"facts"`
	Concepts      string `xml:"concepts"`
	FilesRead     string `xml:"files_read"`
	FilesModified string `xml:"files_modified"`
}

type summaryElement struct {
	Request      string `xml:"request"`
	Investigated string `xml:"investigated"`
	Learned      string `xml:"learned"`
	Completed    string `xml:"completed"`
	NextSteps    string `xml:"next_steps"`
	Notes        string `xml:"notes"`
}

// ParseObservations extracts zero or more observations from the LLM's
// response text. contentSessionID is accepted for parity with the
// documented signature but the parser itself is context-free; it
// exists purely so future observation types can carry provenance
// without changing the function's shape.
func ParseObservations(responseText string, contentSessionID string) []sessionstore.Observation {
	_ = contentSessionID

	blob := extractTag(responseText, "observations")
	if blob == "" {
		// Tolerate a bare sequence of <observation> elements with no
		// wrapping <observations> root, which some prompts produce.
		blob = responseText
	}

	var doc observationsDocument
	if err := xml.Unmarshal([]byte("<observations>"+blob+"</observations>"), &doc); err != nil {
		return nil
	}

	observations := make([]sessionstore.Observation, 0, len(doc.Observations))
	for _, element := range doc.Observations {
		if strings.TrimSpace(element.Type) == "" && strings.TrimSpace(element.Narrative) == "" {
			continue
		}
		observations = append(observations, sessionstore.Observation{
			Type:          strings.TrimSpace(element.Type),
			Title:         strings.TrimSpace(element.Title),
			Subtitle:      strings.TrimSpace(element.Subtitle),
			Facts:         splitList(element.Facts),
			Narrative:     strings.TrimSpace(element.Narrative),
			Concepts:      splitList(element.Concepts),
			FilesRead:     splitList(element.FilesRead),
			FilesModified: splitList(element.FilesModified),
		})
	}
	return observations
}

// ParseSummary extracts the end-of-turn summary from the LLM's
// response text. sessionDBID is accepted for parity with the
// documented signature; like ParseObservations, the parser itself
// does not need it. Returns nil if no <summary> block is present or
// it carries no content.
func ParseSummary(responseText string, sessionDBID int64) *sessionstore.Summary {
	_ = sessionDBID

	blob := extractTag(responseText, "summary")
	if blob == "" {
		return nil
	}

	var element summaryElement
	if err := xml.Unmarshal([]byte("<summary>"+blob+"</summary>"), &element); err != nil {
		return nil
	}

	summary := sessionstore.Summary{
		Request:      strings.TrimSpace(element.Request),
		Investigated: strings.TrimSpace(element.Investigated),
		Learned:      strings.TrimSpace(element.Learned),
		Completed:    strings.TrimSpace(element.Completed),
		NextSteps:    strings.TrimSpace(element.NextSteps),
		Notes:        strings.TrimSpace(element.Notes),
	}
	if summary == (sessionstore.Summary{}) {
		return nil
	}
	return &summary
}

// extractTag returns the inner content of the first <tag>...</tag>
// block found in text, or "" if absent. LLM output routinely wraps
// the structured block in prose or markdown fences; scanning for the
// tag rather than requiring the whole response to be well-formed XML
// keeps the parser tolerant of that.
func extractTag(text, tag string) string {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"

	start := strings.Index(text, open)
	if start < 0 {
		return ""
	}
	start += len(open)

	end := strings.Index(text[start:], closeTag)
	if end < 0 {
		return ""
	}
	return text[start : start+end]
}

// splitList turns a comma-or-newline-separated field into a trimmed,
// non-empty string slice.
func splitList(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}

	replaced := strings.ReplaceAll(field, "\n", ",")
	parts := strings.Split(replaced, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
