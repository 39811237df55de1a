package scoring

import "fmt"

// Config is the scorer-construction shape a manifest's ScorerConfig
// resolves to at build time: a type name, an aggregation weight, an
// optional mode string, and a bag of type-specific parameters.
type Config struct {
	Type       string
	Weight     float64
	Mode       string
	Parameters map[string]any

	// CallOrder is tool_call_count's order_matters source, the manifest's
	// parameters.calls key order. Callers that build a Config directly
	// (rather than from a decoded manifest) may leave it nil, but then
	// order_matters cannot be set: Build rejects that combination.
	CallOrder []string
}

// FactoryFunc builds one Scorer from a resolved Config, the judge to use
// for LLM-backed scorers, and the eval's question (used only by scorers
// that grade against the original prompt).
type FactoryFunc func(judge Judge, question string, cfg Config) (Scorer, error)

var factories = map[string]FactoryFunc{
	"llm_critique":      buildLLMCritique,
	"llm_extract_value": buildLLMExtractValue,
	"contains_string":   buildContainsString,
	"tool_call_count":   buildToolCallCount,
	"tool_call_input":   buildToolCallInput,
	"tool_call_output":  buildToolCallOutput,
}

// Build looks up the registered factory for cfg.Type and constructs a
// WeightedScorer. An unknown type is a hard configuration error, per §4.8.
func Build(judge Judge, question string, cfg Config) (WeightedScorer, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return WeightedScorer{}, fmt.Errorf("scoring: unknown scorer type %q", cfg.Type)
	}
	weight := cfg.Weight
	if weight == 0 {
		weight = 1.0
	}
	scorer, err := factory(judge, question, cfg)
	if err != nil {
		return WeightedScorer{}, fmt.Errorf("scoring: building %q scorer: %w", cfg.Type, err)
	}
	return WeightedScorer{Weight: weight, Scorer: scorer}, nil
}

func buildLLMCritique(judge Judge, question string, cfg Config) (Scorer, error) {
	return NewLLMCritiqueScorer(judge, question), nil
}

func buildLLMExtractValue(judge Judge, question string, cfg Config) (Scorer, error) {
	expected := cfg.Parameters["expected"]
	return NewLLMExtractValueScorer(judge, expected), nil
}

func buildContainsString(judge Judge, question string, cfg Config) (Scorer, error) {
	target, _ := cfg.Parameters["target"].(string)
	if target == "" {
		return nil, fmt.Errorf("contains_string: missing required parameter %q", "target")
	}
	caseSensitive, _ := cfg.Parameters["case_sensitive"].(bool)
	return NewContainsStringScorer(target, caseSensitive), nil
}

func buildToolCallCount(judge Judge, question string, cfg Config) (Scorer, error) {
	raw, ok := cfg.Parameters["calls"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool_call_count: missing required parameter %q", "calls")
	}
	calls := make(map[string]CountConstraint, len(raw))
	for name, v := range raw {
		spec, _ := v.(map[string]any)
		calls[name] = CountConstraint{
			Exact: intPtrFrom(spec["exact"]),
			Min:   intPtrFrom(spec["min"]),
			Max:   intPtrFrom(spec["max"]),
		}
	}
	orderMatters, _ := cfg.Parameters["order_matters"].(bool)
	if orderMatters && len(cfg.CallOrder) == 0 {
		return nil, fmt.Errorf("tool_call_count: order_matters requires parameters.calls to be a JSON object literal so its key order is known")
	}
	return NewToolCallCountScorer(calls, cfg.CallOrder, orderMatters), nil
}

func buildToolCallInput(judge Judge, question string, cfg Config) (Scorer, error) {
	raw, ok := cfg.Parameters["inputs"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool_call_input: missing required parameter %q", "inputs")
	}
	inputs := make(map[string][]InputConstraint, len(raw))
	for toolName, v := range raw {
		list, _ := v.([]any)
		constraints := make([]InputConstraint, 0, len(list))
		for _, item := range list {
			m, _ := item.(map[string]any)
			field, _ := m["field"].(string)
			value, _ := m["value"].(string)
			mode, _ := m["mode"].(string)
			if mode == "" {
				mode = string(InputExact)
			}
			constraints = append(constraints, InputConstraint{Field: field, Value: value, Mode: InputConstraintMode(mode)})
		}
		inputs[toolName] = constraints
	}
	return NewToolCallInputScorer(inputs), nil
}

func buildToolCallOutput(judge Judge, question string, cfg Config) (Scorer, error) {
	results, ok := cfg.Parameters["results"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool_call_output: missing required parameter %q", "results")
	}
	tolerance, _ := cfg.Parameters["tolerance"].(float64)
	ignoreExtra := true
	if v, present := cfg.Parameters["ignore_extra"]; present {
		ignoreExtra, _ = v.(bool)
	}
	return NewToolCallOutputScorer(results, tolerance, ignoreExtra), nil
}

func intPtrFrom(v any) *int {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}
