package engine

import (
	"fmt"
	"strings"

	"logferry/pkg/config"
	"logferry/pkg/model"
)

// ProcessorChain manages a sequential list of processors.
type ProcessorChain struct {
	processors []Processor
}

// NewProcessorChain creates a chain with the given list of processors.
func NewProcessorChain(processors ...Processor) *ProcessorChain {
	return &ProcessorChain{
		processors: processors,
	}
}

// Process runs the entry through all processors in the chain. If one drops
// it, Process returns that processor's name.
func (c *ProcessorChain) Process(e *model.Entry) (droppedBy string, drop bool) {
	for _, p := range c.processors {
		if p.Process(e) {
			return p.Name(), true
		}
	}
	return "", false
}

// Len returns the number of processors.
func (c *ProcessorChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.processors)
}

// BuildChain turns configured rules into a chain. An empty rule list yields
// an empty chain.
func BuildChain(rules []config.ProcessorRule) (*ProcessorChain, error) {
	var processors []Processor
	for _, rule := range rules {
		id := rule.ID
		if id == "" {
			id = rule.Type
		}
		switch rule.Type {
		case "filter":
			words := splitParam(rule.Params["value"])
			if len(words) == 0 {
				return nil, fmt.Errorf("processor %s: filter needs a value", id)
			}
			processors = append(processors, NewFilterProcessor(id, words))
		case "drop_level":
			levels := rule.Params["levels"]
			if levels == "" {
				return nil, fmt.Errorf("processor %s: drop_level needs levels", id)
			}
			processors = append(processors, NewLevelFilter(id, levels))
		case "redact":
			pat := rule.Params["pattern"]
			rep := rule.Params["replacement"]
			if pat == "" {
				return nil, fmt.Errorf("processor %s: redact needs a pattern", id)
			}
			processors = append(processors, NewRedactionProcessor(id, pat, rep))
		case "field_filter":
			proc, err := NewFieldFilterProcessor(FieldFilterConfig{
				Name:     id,
				Field:    Field(rule.Params["field"]),
				Operator: Operator(rule.Params["operator"]),
				Value:    rule.Params["value"],
			})
			if err != nil {
				return nil, fmt.Errorf("processor %s: %w", id, err)
			}
			processors = append(processors, proc)
		default:
			return nil, fmt.Errorf("processor %s: unknown type %q", id, rule.Type)
		}
	}
	return NewProcessorChain(processors...), nil
}

func splitParam(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
