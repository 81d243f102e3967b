// Package history normalizes persisted dialogue state into a sequence the
// model API accepts: every assistant tool call must be answered by a tool
// result before the conversation moves on. Histories reloaded from storage,
// or left behind by a partially-failed run, can violate this; dropping the
// whole session would be destructive, so the repair is localized.
package history

import (
	"fmt"
	"strings"

	"github.com/neo050/Office-Automation-Law-bot/provider"
)

// Report counts the fixes applied by Repair.
type Report struct {
	Dropped          int // messages with no role
	Fixed            int // assistant messages whose call list was trimmed
	OrphanTools      int // tool results with no open matching call
	RemovedToolCalls int // individual calls stripped for lack of an answer
}

// Empty reports whether the repair pass changed nothing.
func (r Report) Empty() bool {
	return r == Report{}
}

// frame tracks one assistant message awaiting tool results.
type frame struct {
	idx       int
	ids       map[string]bool
	responded map[string]bool
}

// Repair returns a copy of the history in which every assistant tool-call
// list is fully answered by immediately-following tool messages. Orphan tool
// results are dropped; unanswered call ids are stripped from their assistant
// message (the list is removed entirely when it empties).
func Repair(msgs []provider.Message) ([]provider.Message, Report) {
	cleaned := make([]provider.Message, 0, len(msgs))
	var report Report
	var pending []*frame

	for _, msg := range msgs {
		if msg.Role == "" {
			report.Dropped++
			continue
		}

		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			f := &frame{
				idx:       len(cleaned),
				ids:       make(map[string]bool, len(msg.ToolCalls)),
				responded: make(map[string]bool, len(msg.ToolCalls)),
			}
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" {
					f.ids[tc.ID] = true
				}
			}
			pending = append(pending, f)
			cleaned = append(cleaned, cloneMessage(msg))
			continue
		}

		if msg.Role == "tool" {
			if msg.ToolCallID == "" {
				report.OrphanTools++
				continue
			}
			var owner *frame
			for i := len(pending) - 1; i >= 0; i-- {
				if pending[i].ids[msg.ToolCallID] {
					owner = pending[i]
					break
				}
			}
			if owner == nil {
				report.OrphanTools++
				continue
			}
			owner.responded[msg.ToolCallID] = true
			cleaned = append(cleaned, cloneMessage(msg))
			continue
		}

		cleaned = append(cleaned, cloneMessage(msg))
	}

	for _, f := range pending {
		unresolved := make(map[string]bool)
		for id := range f.ids {
			if !f.responded[id] {
				unresolved[id] = true
			}
		}
		if len(unresolved) == 0 {
			continue
		}
		kept := cleaned[f.idx].ToolCalls[:0:0]
		for _, tc := range cleaned[f.idx].ToolCalls {
			if !unresolved[tc.ID] {
				kept = append(kept, tc)
			}
		}
		report.RemovedToolCalls += len(cleaned[f.idx].ToolCalls) - len(kept)
		if len(kept) == 0 {
			kept = nil
		}
		cleaned[f.idx].ToolCalls = kept
		report.Fixed++
	}

	return cleaned, report
}

// Sanitize returns a copy with content coerced to the shape the model call
// accepts: tool results always carry a textual payload, other roles never
// carry a nil-equivalent. The input is not mutated.
func Sanitize(msgs []provider.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, msg := range msgs {
		m := cloneMessage(msg)
		if m.Role == "tool" && m.Content == "" {
			m.Content = "{}"
		}
		out = append(out, m)
	}
	return out
}

// EnsureSystemPrompt inserts the system message at index 0 when the history
// is empty or starts with another role. Duplicate system messages deeper in
// the history are not deduplicated (single-writer discipline keeps them out).
func EnsureSystemPrompt(msgs []provider.Message, prompt string) []provider.Message {
	if len(msgs) == 0 || msgs[0].Role != "system" {
		out := make([]provider.Message, 0, len(msgs)+1)
		out = append(out, provider.SystemMessage(prompt))
		out = append(out, msgs...)
		return out
	}
	return msgs
}

// BuildTranscript renders the dialogue as "[user] …" / "[bot] …" lines for
// the archived chat bundle. System and tool turns are omitted.
func BuildTranscript(msgs []provider.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case "user":
			fmt.Fprintf(&b, "[user] %s\n", content)
		case "assistant":
			fmt.Fprintf(&b, "[bot] %s\n", content)
		}
	}
	return b.String()
}

func cloneMessage(m provider.Message) provider.Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]provider.ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}
