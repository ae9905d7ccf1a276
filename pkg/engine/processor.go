package engine

import "logferry/pkg/model"

// Processor transforms or filters parsed entries before they are batched.
type Processor interface {
	// Process may modify e in place. It returns true if the entry should be
	// dropped; the chain stops at the first drop.
	Process(e *model.Entry) (drop bool)

	// Name identifies the processor in metrics and logs.
	Name() string
}
