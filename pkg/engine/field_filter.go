package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"logferry/pkg/model"
)

// Operator defines the comparison used by FieldFilterProcessor.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// Field names an entry column.
type Field string

const (
	FieldDate      Field = "date"
	FieldPid       Field = "pid"
	FieldTid       Field = "tid"
	FieldLevel     Field = "level"
	FieldComponent Field = "component"
	FieldContent   Field = "content"
)

// FieldFilterConfig holds configuration for creating a FieldFilterProcessor.
type FieldFilterConfig struct {
	Name     string
	Field    Field
	Operator Operator
	Value    string
}

// FieldFilterProcessor drops entries whose field matches a value.
type FieldFilterProcessor struct {
	name     string
	field    Field
	operator Operator
	value    string
	regex    *regexp.Regexp // compiled regex if operator is OpRegex
}

func NewFieldFilterProcessor(cfg FieldFilterConfig) (*FieldFilterProcessor, error) {
	switch cfg.Field {
	case FieldDate, FieldPid, FieldTid, FieldLevel, FieldComponent, FieldContent:
	case "":
		return nil, fmt.Errorf("field must be specified")
	default:
		return nil, fmt.Errorf("unknown field %q", cfg.Field)
	}

	p := &FieldFilterProcessor{
		name:     cfg.Name,
		field:    cfg.Field,
		operator: cfg.Operator,
		value:    cfg.Value,
	}
	if p.operator == "" {
		p.operator = OpEquals
	}

	switch p.operator {
	case OpEquals, OpContains:
	case OpRegex:
		re, err := regexp.Compile(cfg.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		p.regex = re
	default:
		return nil, fmt.Errorf("unknown operator %q", p.operator)
	}
	return p, nil
}

func (p *FieldFilterProcessor) Name() string {
	return p.name
}

func (p *FieldFilterProcessor) Process(e *model.Entry) bool {
	v := fieldValue(e, p.field)
	switch p.operator {
	case OpEquals:
		return v == p.value
	case OpContains:
		return strings.Contains(v, p.value)
	case OpRegex:
		return p.regex.MatchString(v)
	}
	return false
}

func fieldValue(e *model.Entry, f Field) string {
	switch f {
	case FieldDate:
		return e.LogDate
	case FieldPid:
		return strconv.Itoa(int(e.Pid))
	case FieldTid:
		return strconv.Itoa(int(e.Tid))
	case FieldLevel:
		return string(e.Level)
	case FieldComponent:
		return e.Component
	case FieldContent:
		return e.Content
	}
	return ""
}
