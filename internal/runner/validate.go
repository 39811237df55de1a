package runner

import (
	"fmt"

	"github.com/mcpeval/harness/internal/eval"
	"github.com/mcpeval/harness/internal/transcript"
)

// validateMcpUsage implements the §4.9 supplement: an eval's aggregate
// score is halved, and its reason prefixed, if the transcript's invocation
// log used any server outside execution.mcps. The shared registry can
// expose more servers than a given eval declares (built once per Runner
// for connection efficiency), so this is enforced at scoring time rather
// than by refusing dispatch.
func validateMcpUsage(e eval.Eval, invocations []transcript.ToolInvocationRecord) (bool, string) {
	allowed := e.AllowedServers()
	for _, inv := range invocations {
		if !allowed[inv.ServerName] {
			return false, fmt.Sprintf("invalid MCP usage: %s not in allowed set", inv.ServerName)
		}
	}
	return true, ""
}
