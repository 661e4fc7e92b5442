// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"testing"
)

func TestParseObservationsHappyPath(t *testing.T) {
	response := `Here is my analysis:
<observations>
  <observation>
    <type>file-read</type>
    <title>Read the config loader</title>
    <subtitle>config.go</subtitle>
    <narrative>Looked at how defaults are merged with YAML overrides.</narrative>
    <facts>uses yaml.v3, merges onto Default()</facts>
    <concepts>configuration, defaults</concepts>
    <files_read>lib/config/config.go</files_read>
  </observation>
</observations>`

	observations := ParseObservations(response, "content-1")
	if len(observations) != 1 {
		t.Fatalf("got %d observations, want 1", len(observations))
	}
	obs := observations[0]
	if obs.Type != "file-read" {
		t.Errorf("Type = %q, want file-read", obs.Type)
	}
	if obs.Title != "Read the config loader" {
		t.Errorf("Title = %q", obs.Title)
	}
	if len(obs.Facts) != 2 || obs.Facts[0] != "uses yaml.v3" || obs.Facts[1] != "merges onto Default()" {
		t.Errorf("Facts = %v", obs.Facts)
	}
	if len(obs.Concepts) != 2 {
		t.Errorf("Concepts = %v, want 2 entries", obs.Concepts)
	}
	if len(obs.FilesRead) != 1 || obs.FilesRead[0] != "lib/config/config.go" {
		t.Errorf("FilesRead = %v", obs.FilesRead)
	}
}

func TestParseObservationsMultiple(t *testing.T) {
	response := `<observations>
  <observation><type>a</type><narrative>first</narrative></observation>
  <observation><type>b</type><narrative>second</narrative></observation>
</observations>`

	observations := ParseObservations(response, "content-1")
	if len(observations) != 2 {
		t.Fatalf("got %d observations, want 2", len(observations))
	}
}

func TestParseObservationsEmptyIsNotAnError(t *testing.T) {
	cases := []string{
		"",
		"I found nothing worth recording.",
		"<observations></observations>",
	}
	for _, response := range cases {
		if got := ParseObservations(response, "content-1"); len(got) != 0 {
			t.Errorf("ParseObservations(%q) = %v, want empty", response, got)
		}
	}
}

func TestParseObservationsMalformedXMLReturnsEmptyNotError(t *testing.T) {
	response := `<observations><observation><type>unterminated`
	if got := ParseObservations(response, "content-1"); len(got) != 0 {
		t.Errorf("ParseObservations(malformed) = %v, want empty", got)
	}
}

func TestParseSummaryHappyPath(t *testing.T) {
	response := `<summary>
  <request>Add retry handling to the worker loop</request>
  <investigated>the queue package's MarkToolEventFailed contract</investigated>
  <learned>retry_count is caller-driven, not config-baked</learned>
  <completed>wired MAX_RETRIES through from DaemonConfig</completed>
  <next_steps>write the stall-release test</next_steps>
  <notes></notes>
</summary>`

	summary := ParseSummary(response, 42)
	if summary == nil {
		t.Fatal("ParseSummary returned nil, want a summary")
	}
	if summary.Request != "Add retry handling to the worker loop" {
		t.Errorf("Request = %q", summary.Request)
	}
	if summary.Learned == "" {
		t.Error("Learned should be populated")
	}
}

func TestParseSummaryAbsentReturnsNil(t *testing.T) {
	if got := ParseSummary("no summary block here", 42); got != nil {
		t.Errorf("ParseSummary = %v, want nil", got)
	}
}

func TestParseSummaryEmptyBlockReturnsNil(t *testing.T) {
	if got := ParseSummary("<summary></summary>", 42); got != nil {
		t.Errorf("ParseSummary = %v, want nil for an empty block", got)
	}
}
