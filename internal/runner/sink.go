package runner

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

var tsvHeader = []string{
	"eval_id", "question", "score", "reason", "answer", "tool_count", "mcp_valid",
	"duration_ms", "per_scorer", "transcript_json", "tool_calls_json",
}

// TSVSink writes one tab-delimited row per eval result, per §6's "Result
// sink (TSV)" contract. Header is written once, at construction.
type TSVSink struct {
	file   *os.File
	writer *csv.Writer
}

// NewTSVSink creates (or truncates) path and writes the TSV header.
func NewTSVSink(path string) (*TSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("runner: create %q: %w", path, err)
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(tsvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("runner: write header to %q: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("runner: flush header to %q: %w", path, err)
	}
	return &TSVSink{file: f, writer: w}, nil
}

// Write appends one Result row. Complex fields are already JSON-encoded by
// the caller (TranscriptJSON, ToolCallsJSON); PerScorer is encoded here.
func (s *TSVSink) Write(r Result) error {
	perScorer, err := json.Marshal(r.PerScorer)
	if err != nil {
		return fmt.Errorf("runner: encode per_scorer: %w", err)
	}
	row := []string{
		r.EvalID,
		r.Question,
		strconv.FormatFloat(r.Score, 'f', 6, 64),
		r.Reason,
		r.Answer,
		strconv.Itoa(r.ToolCount),
		strconv.FormatBool(r.MCPValid),
		strconv.FormatInt(r.DurationMS, 10),
		string(perScorer),
		r.TranscriptJSON,
		r.ToolCallsJSON,
	}
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("runner: write row: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the underlying file.
func (s *TSVSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
