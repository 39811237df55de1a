package mcp

import (
	"encoding/json"
	"testing"

	sdk_mcp "github.com/mark3labs/mcp-go/mcp"
)

func textResult(texts ...string) *sdk_mcp.CallToolResult {
	content := make([]sdk_mcp.Content, len(texts))
	for i, t := range texts {
		content[i] = sdk_mcp.TextContent{Type: "text", Text: t}
	}
	return &sdk_mcp.CallToolResult{Content: content}
}

func TestNormalize_SingleJSONObjectWithoutSuccess(t *testing.T) {
	got := normalize(textResult(`{"sum": 5}`))
	if !got.Success {
		t.Fatalf("Success = false, want true")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(got.Result, &obj); err != nil {
		t.Fatalf("Result not valid JSON: %v", err)
	}
	if _, ok := obj["sum"]; !ok {
		t.Errorf("expected injected object to retain original keys, got %s", got.Result)
	}
}

func TestNormalize_SingleJSONObjectWithSuccess(t *testing.T) {
	got := normalize(textResult(`{"success": false, "error": "boom"}`))
	if got.Success {
		t.Fatalf("Success = true, want false")
	}
	if got.Error != "boom" {
		t.Errorf("Error = %q, want boom", got.Error)
	}
}

func TestNormalize_SingleJSONArray(t *testing.T) {
	got := normalize(textResult(`[1,2,3]`))
	if !got.Success {
		t.Fatal("Success = false, want true")
	}
	if string(got.Result) != "[1,2,3]" {
		t.Errorf("Result = %s, want [1,2,3]", got.Result)
	}
}

func TestNormalize_SinglePlainText(t *testing.T) {
	got := normalize(textResult("42 degrees"))
	if !got.Success || got.Content != "42 degrees" {
		t.Errorf("got %+v, want success with content", got)
	}
}

func TestNormalize_MultipleTextBlocks(t *testing.T) {
	got := normalize(textResult(`{"a":1}`, "plain text"))
	if !got.Success {
		t.Fatal("Success = false, want true")
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(got.Result, &arr); err != nil {
		t.Fatalf("Result not a JSON array: %v", err)
	}
	if len(arr) != 2 {
		t.Fatalf("len(arr) = %d, want 2", len(arr))
	}
}

func TestNormalize_NoContent(t *testing.T) {
	got := normalize(&sdk_mcp.CallToolResult{})
	if got.Success {
		t.Fatal("Success = true, want false")
	}
	if got.Error != "No response from server" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestNormalize_StructuredContentPreferred(t *testing.T) {
	result := textResult(`{"should": "be ignored"}`)
	result.StructuredContent = map[string]any{"result": map[string]any{"sum": 7}}
	got := normalize(result)
	if !got.Success {
		t.Fatal("Success = false, want true")
	}
	if string(got.Result) != `{"sum":7}` {
		t.Errorf("Result = %s, want {\"sum\":7}", got.Result)
	}
}

func TestErrorHeuristic(t *testing.T) {
	c := NewClient(ServerConfig{Name: "test"})
	if !c.FindErrorsInContent {
		t.Fatal("FindErrorsInContent should default to true")
	}
}
