// Package telemetry implements the optional MCP-call log named in §6: a
// line-atomic CSV sink recording every normalized tool response, gated
// behind the manifest's logging.mcp_calls flag.
package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{"timestamp", "server_name", "tool_name", "arguments", "response_size_tokens", "response_size_bytes"}

// MCPLog appends one CSV row per tool call to a single file, shared across
// every eval in a run. Writes are serialized under mu so rows never
// interleave even if callers run concurrently.
type MCPLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// OpenMCPLog creates (or truncates) path and writes the CSV header.
func OpenMCPLog(path string) (*MCPLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create %q: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("telemetry: write header to %q: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("telemetry: flush header to %q: %w", path, err)
	}
	return &MCPLog{file: f, writer: w}, nil
}

// Record appends one row for a completed tool call. arguments is written
// into the row verbatim; response is the already-serialized tool result,
// whose word count and byte length fill the two size columns. Neither is
// re-marshaled.
func (l *MCPLog) Record(serverName, toolName string, arguments json.RawMessage, response string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		time.Now().UTC().Format("2006-01-02T15:04:05.000") + "Z",
		serverName,
		toolName,
		string(arguments),
		strconv.Itoa(approxTokens(response)),
		strconv.Itoa(len(response)),
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("telemetry: write row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// approxTokens mirrors the original implementation's word-count heuristic:
// it is not a real tokenizer, only a cheap order-of-magnitude estimate.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}

// Close flushes and closes the underlying file.
func (l *MCPLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
