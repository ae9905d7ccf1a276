package engine

import (
	"strings"

	"logferry/pkg/model"
)

// FilterProcessor drops entries whose content contains any blocked word.
type FilterProcessor struct {
	name  string
	block []string
}

func NewFilterProcessor(name string, blockWords []string) *FilterProcessor {
	return &FilterProcessor{
		name:  name,
		block: blockWords,
	}
}

func (f *FilterProcessor) Name() string {
	return f.name
}

func (f *FilterProcessor) Process(e *model.Entry) bool {
	// Naive O(N*M) check.
	for _, word := range f.block {
		if strings.Contains(e.Content, word) {
			return true
		}
	}
	return false
}

// LevelFilter drops entries at the listed severity letters, e.g. "VD".
type LevelFilter struct {
	name string
	drop [256]bool
}

func NewLevelFilter(name string, levels string) *LevelFilter {
	f := &LevelFilter{name: name}
	for i := 0; i < len(levels); i++ {
		if levels[i] != ',' && levels[i] != ' ' {
			f.drop[levels[i]] = true
		}
	}
	return f
}

func (f *LevelFilter) Name() string {
	return f.name
}

func (f *LevelFilter) Process(e *model.Entry) bool {
	return f.drop[e.Level]
}
