// Package prompt supplies the template strings used by the Introspector and
// the LLM-backed scorers. It ships embedded defaults so the harness runs
// without any external template directory, and optionally overlays
// overrides from a directory of same-named .tmpl files, matching the
// teacher's internal/prompt loader's fallback-to-embedded-default behavior.
package prompt

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Name identifies one of the harness's built-in prompt templates.
type Name string

const (
	AnswerValidation Name = "answer_validation"
	Introspective    Name = "introspective"
	Critique         Name = "critique"
	ExtractValue     Name = "extract_value"
	Compress         Name = "compress"
)

var defaults = map[Name]string{
	AnswerValidation: `You are validating whether an assistant's answer fully addresses the user's question.
Conversation trace:
{{.Trace}}

Candidate answer:
{{.Answer}}

Respond with strict JSON: {"valid": bool, "reason": string, "followup_question": string (optional)}.`,

	Introspective: `You are observing an in-progress tool-using conversation and deciding whether it should continue.
Conversation trace so far:
{{.Trace}}

Respond with strict JSON: {"continue": bool, "reason": string, "next_prompt": string (optional)}.
Only recommend continuing at a semantic level — never propose concrete tool call arguments.`,

	Critique: `You are grading an assistant's performance on a task.
User question:
{{.Question}}

Conversation trace:
{{.Trace}}

Tool calls made:
{{.ToolCalls}}

Respond with strict JSON: {"answered": bool, "score": float between 0 and 1, "justification": string}.`,

	ExtractValue: `Extract the single scalar value the assistant reported as its final answer from the messages below.
Messages:
{{.Trace}}

Respond with only the extracted value, nothing else.`,

	Compress: `You are a smart context compressor. Your job is to take a PROMPT and compress it to the most concise form possible, while retaining its original meaning.
Rules:
* Aim for under 200 words. Preserve intent and key details.
* Keep existing role structure (e.g. USER: .., ASSISTANT: ..) exactly as it appears.
* Replace long sections (files, tables, traces) with a one-line summary.
* For technical sections (errors, traces), keep only the critical information.
Respond with the compressed prompt only, nothing else.

{{.Prompt}}`,
}

// Loader resolves template text, optionally overlaying an override
// directory loaded lazily and cached.
type Loader struct {
	mu        sync.RWMutex
	overrides map[Name]string
	dir       string
	loaded    bool
}

// NewLoader creates a Loader. dir may be empty, in which case only embedded
// defaults are used.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, overrides: make(map[Name]string)}
}

// Get returns the template text for name, preferring an override file
// "<name>.tmpl" in the loader's directory if present.
func (l *Loader) Get(name Name) (string, error) {
	l.mu.RLock()
	if !l.loaded {
		l.mu.RUnlock()
		l.loadOverrides()
		l.mu.RLock()
	}
	if t, ok := l.overrides[name]; ok {
		l.mu.RUnlock()
		return t, nil
	}
	l.mu.RUnlock()

	t, ok := defaults[name]
	if !ok {
		return "", fmt.Errorf("prompt: unknown template %q", name)
	}
	return t, nil
}

func (l *Loader) loadOverrides() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = true
	if l.dir == "" {
		return
	}
	for name := range defaults {
		path := filepath.Join(l.dir, string(name)+".tmpl")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		l.overrides[name] = strings.TrimRight(string(data), "\n")
		log.Printf("[Prompt] loaded override for %q from %s", name, path)
	}
}
