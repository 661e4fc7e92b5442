// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/claude-mem/daemon/internal/queue"
	"github.com/claude-mem/daemon/internal/sessionstore"
)

const eventSystemPreamble = `You observe a coding assistant's tool usage and extract durable memory.
For each raw tool event below, decide whether it is worth recording as an
observation. Respond with zero or more <observation> elements inside a
single <observations> root, each containing type, title, subtitle,
narrative, facts, concepts, files_read, and files_modified. Keep title
under 80 characters and narrative under 500 characters. Omit an
observation entirely rather than recording something trivial.`

const summarySystemPreamble = `You write an end-of-turn memory summary for a coding assistant session.
Respond with a single <summary> element containing request, investigated,
learned, completed, next_steps, and notes. Keep request to 80-120
characters, investigated and learned to 150-250 characters each, and
completed to 300-500 characters. These are guidance for concision, not
hard limits.`

// buildEventPrompt renders one XML-ish block per raw event: tool name,
// timestamp, cwd, decoded input payload, decoded output payload.
func buildEventPrompt(events []queue.RawToolEvent) string {
	var b strings.Builder
	b.WriteString("<raw_events>\n")
	for _, event := range events {
		timestamp := time.UnixMilli(event.CreatedAtEpoch).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "  <event tool=%q timestamp=%q cwd=%q>\n", event.ToolName, timestamp, event.Cwd)
		fmt.Fprintf(&b, "    <input>%s</input>\n", event.ToolInput)
		fmt.Fprintf(&b, "    <output>%s</output>\n", event.ToolResponse)
		b.WriteString("  </event>\n")
	}
	b.WriteString("</raw_events>\n")
	return b.String()
}

// buildSummaryPrompt renders the end-of-turn prompt: the user's
// request, the assistant's final message, and up to ten recent
// observations from the project as advisory context.
func buildSummaryPrompt(req queue.RawSummaryRequest, recent []sessionstore.RecentObservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<turn>\n  <user_prompt>%s</user_prompt>\n  <last_assistant_message>%s</last_assistant_message>\n</turn>\n",
		req.UserPrompt, req.LastAssistantMessage)

	if len(recent) > 0 {
		b.WriteString("<recent_activity>\n")
		for _, observation := range recent {
			fmt.Fprintf(&b, "  <item type=%q>%s</item>\n", observation.Type, observation.Text)
		}
		b.WriteString("</recent_activity>\n")
	}

	return b.String()
}
