package transcript

import "fmt"

// CheckInvariants validates the three structural invariants named in §3/§8:
// every tool_call_id references a preceding assistant tool_calls entry,
// timestamps are nondecreasing, and a system message (if any) comes first.
// It is used by tests and may be used defensively by callers that build a
// transcript from untrusted replay data.
func (t *ChatTranscript) CheckInvariants() error {
	seenCallIDs := make(map[string]bool)
	var last Message
	hasLast := false

	for i, m := range t.messages {
		if m.Role == RoleSystem && i != 0 {
			return fmt.Errorf("transcript: system message at index %d, must be first", i)
		}
		if hasLast && m.Timestamp.Before(last.Timestamp) {
			return fmt.Errorf("transcript: message %d timestamp %s precedes previous %s", i, m.Timestamp, last.Timestamp)
		}
		if m.Role == RoleAssistant {
			for _, c := range m.ToolCalls {
				seenCallIDs[c.ID] = true
			}
		}
		if m.Role == RoleTool && m.ToolCallID != "" {
			if !seenCallIDs[m.ToolCallID] {
				return fmt.Errorf("transcript: tool response references unknown tool_call_id %q", m.ToolCallID)
			}
		}
		last = m
		hasLast = true
	}
	return nil
}
