package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ChatTranscript is the append-only conversation log for one ToolAgent.
// It is NOT goroutine-safe: per §5 of the spec, a ChatTranscript is mutated
// by a single logical thread of control for the lifetime of its owning Host.
type ChatTranscript struct {
	messages    []Message
	invocations []ToolInvocationRecord
}

// New creates an empty transcript.
func New() *ChatTranscript {
	return &ChatTranscript{}
}

func (t *ChatTranscript) now() time.Time {
	if len(t.messages) == 0 {
		return time.Now()
	}
	last := t.messages[len(t.messages)-1].Timestamp
	now := time.Now()
	if now.Before(last) {
		// Guarantee the nondecreasing-timestamp invariant even if the wall
		// clock is adjusted backwards between two appends.
		return last
	}
	return now
}

func (t *ChatTranscript) append(msg Message) {
	msg.Timestamp = t.now()
	t.messages = append(t.messages, msg)
}

// AppendSystem appends a system message. Per the transcript invariant, a
// caller must only do this once, before any other append.
func (t *ChatTranscript) AppendSystem(text string) {
	t.append(Message{Role: RoleSystem, Content: text})
}

// AppendUser appends a user-role message.
func (t *ChatTranscript) AppendUser(text string) {
	t.append(Message{Role: RoleUser, Content: text})
}

// AppendAssistant appends a tools-free assistant message.
func (t *ChatTranscript) AppendAssistant(text string) {
	t.append(Message{Role: RoleAssistant, Content: text})
}

// AppendAssistantToolCall appends an assistant message carrying one or more
// requested tool calls. Content may be empty.
func (t *ChatTranscript) AppendAssistantToolCall(text string, calls []ToolCallRef) {
	t.append(Message{Role: RoleAssistant, Content: text, ToolCalls: calls})
}

// AppendToolResponse appends a tool-response message bound to callID.
// payload is the JSON-serialized normalized tool result.
func (t *ChatTranscript) AppendToolResponse(callID string, payload string) {
	t.append(Message{Role: RoleTool, Content: payload, ToolCallID: callID})
}

// AppendDeveloper appends a developer-role nudge, used exclusively by the
// Introspector to steer the primary agent without masquerading as the user.
func (t *ChatTranscript) AppendDeveloper(text string) {
	t.append(Message{Role: RoleDeveloper, Content: text})
}

// RecordInvocation records a completed tool invocation in the structural log.
func (t *ChatTranscript) RecordInvocation(server, tool string, args, result json.RawMessage) {
	t.invocations = append(t.invocations, ToolInvocationRecord{
		ServerName: server,
		ToolName:   tool,
		Arguments:  args,
		Result:     result,
		Timestamp:  t.now(),
	})
}

// Messages returns the full message log. The returned slice must not be
// mutated by the caller.
func (t *ChatTranscript) Messages() []Message {
	return t.messages
}

// Invocations returns the full invocation log. The returned slice must not
// be mutated by the caller.
func (t *ChatTranscript) Invocations() []ToolInvocationRecord {
	return t.invocations
}

// LastAssistantText scans backward for the most recent assistant message
// with non-empty content, as used by Workflow.Ask's fallback path.
func (t *ChatTranscript) LastAssistantText() (string, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := t.messages[i]
		if m.Role == RoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content, true
		}
	}
	return "", false
}

// Reset clears all messages and invocations.
func (t *ChatTranscript) Reset() {
	t.messages = nil
	t.invocations = nil
}

const defaultMaxPreview = 100

// RenderTrace produces the canonical, role-prefixed transcript consumed by
// both the introspector and the judge scorers. maxPreview bounds, in runes,
// how much of each tool response is shown inline; pass 0 to use the default
// of 100.
func (t *ChatTranscript) RenderTrace(maxPreview int) string {
	if maxPreview <= 0 {
		maxPreview = defaultMaxPreview
	}
	var b strings.Builder
	for _, m := range t.messages {
		switch m.Role {
		case RoleUser:
			fmt.Fprintf(&b, "USER → %s\n", m.Content)
		case RoleDeveloper:
			fmt.Fprintf(&b, "DEVELOPER → %s\n", m.Content)
		case RoleSystem:
			// System prompt is not part of the human-readable trace.
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				for i, c := range m.ToolCalls {
					prefix := "ASSISTANT → "
					if i > 0 {
						prefix = strings.Repeat(" ", 10)
					}
					fmt.Fprintf(&b, "%s[tool_call:%s](%s)\n", prefix, qualifiedToolName(c), renderArgs(c.Arguments))
				}
				if strings.TrimSpace(m.Content) != "" {
					fmt.Fprintf(&b, "%s💬 %s\n", strings.Repeat(" ", 10), m.Content)
				}
			} else {
				fmt.Fprintf(&b, "ASSISTANT 💬 %s\n", m.Content)
			}
		case RoleTool:
			fmt.Fprintf(&b, "%s← %s\n", strings.Repeat(" ", 10), truncatePreview(m.Content, maxPreview))
		}
	}
	return b.String()
}

// qualifiedToolName renders a tool call as "server.tool", falling back to
// the bare tool name when the server could not be resolved (e.g. the call
// named an unregistered tool).
func qualifiedToolName(c ToolCallRef) string {
	if c.ServerName == "" {
		return c.Name
	}
	return c.ServerName + "." + c.Name
}

// truncatePreview shortens s to at most maxRunes Unicode code points without
// splitting a multi-byte rune, appending a suffix naming the excluded count.
func truncatePreview(s string, maxRunes int) string {
	total := utf8.RuneCountInString(s)
	if total <= maxRunes {
		return s
	}
	runes := []rune(s)
	excluded := total - maxRunes
	return fmt.Sprintf("%s… (%d more chars)", string(runes[:maxRunes]), excluded)
}

// renderArgs formats a tool call's JSON argument object as k="v", ... pairs.
func renderArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic output: sort lexically.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := json.Marshal(m[k])
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ", ")
}

// ToModelMessages serializes the transcript for the ModelClient boundary
// (§6). withSystem controls whether the leading system message is included;
// withTools controls whether tool_calls are carried on assistant messages
// (tool_call_id is always carried on tool-role messages when they are
// included at all).
func (t *ChatTranscript) ToModelMessages(withSystem, withTools bool) []Message {
	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Role == RoleSystem && !withSystem {
			continue
		}
		cp := m
		if !withTools {
			cp.ToolCalls = nil
		}
		out = append(out, cp)
	}
	return out
}
