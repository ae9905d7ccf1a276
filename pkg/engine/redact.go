package engine

import (
	"regexp"

	"logferry/pkg/model"
)

// RedactionProcessor rewrites matches of a pattern in the entry content.
type RedactionProcessor struct {
	name string
	re   *regexp.Regexp
	mask string
}

// NewRedactionProcessor treats target as a regular expression. A target that
// does not compile is matched literally.
func NewRedactionProcessor(name string, target string, mask string) *RedactionProcessor {
	re, err := regexp.Compile(target)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(target))
	}
	return &RedactionProcessor{
		name: name,
		re:   re,
		mask: mask,
	}
}

func (r *RedactionProcessor) Name() string {
	return r.name
}

func (r *RedactionProcessor) Process(e *model.Entry) bool {
	if r.re.MatchString(e.Content) {
		e.Content = r.re.ReplaceAllString(e.Content, r.mask)
	}
	return false
}
