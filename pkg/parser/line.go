package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"logferry/pkg/model"
)

// Fixed header layout, relative to the first digit of the record.
const (
	dateEnd   = 18
	pidStart  = 19
	pidEnd    = 24
	tidStart  = 25
	tidEnd    = 30
	levelAt   = 31
	bodyStart = 33
	minRecord = bodyStart
)

// Outcome is the result of parsing one line.
// Anything other than Parsed means the line was dropped.
type Outcome uint8

const (
	Parsed Outcome = iota
	RejectEmpty
	RejectNoDigit
	RejectTooShort
	RejectPid
	RejectTid
	RejectNoSeparator

	// OutcomeCount is the number of distinct outcomes.
	OutcomeCount
)

var outcomeNames = [OutcomeCount]string{
	Parsed:            "parsed",
	RejectEmpty:       "empty",
	RejectNoDigit:     "no_digit",
	RejectTooShort:    "too_short",
	RejectPid:         "bad_pid",
	RejectTid:         "bad_tid",
	RejectNoSeparator: "no_separator",
}

func (o Outcome) String() string {
	if o < OutcomeCount {
		return outcomeNames[o]
	}
	return "unknown"
}

// Rejections lists every rejecting outcome, in declaration order.
func Rejections() []Outcome {
	return []Outcome{RejectEmpty, RejectNoDigit, RejectTooShort, RejectPid, RejectTid, RejectNoSeparator}
}

// Parse turns one raw line into an Entry.
//
// Lines may carry noise (color codes, framing bytes) before the record, so the
// record starts at the first ASCII digit. Parse does not retain line: every
// string in the returned Entry is a copy. Invalid UTF-8 is replaced with U+FFFD.
func Parse(line []byte) (model.Entry, Outcome) {
	if len(bytes.TrimSpace(line)) == 0 {
		return model.Entry{}, RejectEmpty
	}

	start := firstDigit(line)
	if start < 0 {
		return model.Entry{}, RejectNoDigit
	}
	rec := line[start:]
	if len(rec) < minRecord {
		return model.Entry{}, RejectTooShort
	}

	pid, ok := parseInt16(bytes.TrimSpace(rec[pidStart:pidEnd]))
	if !ok {
		return model.Entry{}, RejectPid
	}
	tid, ok := parseInt16(bytes.TrimSpace(rec[tidStart:tidEnd]))
	if !ok {
		return model.Entry{}, RejectTid
	}

	body := rec[bodyStart:]
	sep := bytes.IndexByte(body, ':')
	if sep < 0 {
		sep = bytes.IndexByte(body, '>')
	}
	if sep < 0 {
		return model.Entry{}, RejectNoSeparator
	}

	return model.Entry{
		LogDate:   text(rec[:dateEnd]),
		Pid:       pid,
		Tid:       tid,
		Level:     rec[levelAt],
		Component: text(body[:sep]),
		Content:   text(bytes.TrimSpace(body[sep+1:])),
	}, Parsed
}

func text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func firstDigit(b []byte) int {
	for i, c := range b {
		if c >= '0' && c <= '9' {
			return i
		}
	}
	return -1
}

// parseInt16 parses an optionally signed base-10 int16 without allocating.
func parseInt16(b []byte) (int16, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	switch b[0] {
	case '-':
		neg = true
		b = b[1:]
	case '+':
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, false
	}

	var n int32
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int32(c-'0')
		if n > 1<<15 {
			return 0, false
		}
	}
	if neg {
		n = -n
	}
	if n > 1<<15-1 {
		return 0, false
	}
	return int16(n), true
}
