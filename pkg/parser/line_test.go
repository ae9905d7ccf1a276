package parser

import (
	"strings"
	"unicode/utf8"
	"testing"

	"logferry/pkg/model"
)

const validLine = "03-17 16:13:38.811  1702  2395 D WindowManager: hi"

func TestParse_Valid(t *testing.T) {
	if len(validLine) != 50 {
		t.Fatalf("fixture must be 50 bytes, got %d", len(validLine))
	}

	entry, outcome := Parse([]byte(validLine))
	if outcome != Parsed {
		t.Fatalf("Expected Parsed, got %s", outcome)
	}

	want := model.Entry{
		LogDate:   "03-17 16:13:38.811",
		Pid:       1702,
		Tid:       2395,
		Level:     'D',
		Component: "WindowManager",
		Content:   "hi",
	}
	if entry != want {
		t.Errorf("Parse() = %+v, want %+v", entry, want)
	}
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Outcome
	}{
		{"empty", "", RejectEmpty},
		{"whitespace only", " \t  ", RejectEmpty},
		{"no digit", "no digits anywhere in this line, really none at all", RejectNoDigit},
		{"too short", "03-17 16:13:38.811  1702  2395 D", RejectTooShort},
		{"too short after noise", "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx1 short", RejectTooShort},
		{"non numeric pid", "03-17 16:13:38.811  17x2  2395 D Tag: msg", RejectPid},
		{"blank pid", "03-17 16:13:38.811        2395 D Tag: msg", RejectPid},
		{"pid out of range", "03-17 16:13:38.811 99999  2395 D Tag: msg", RejectPid},
		{"non numeric tid", "03-17 16:13:38.811  1702  ab95 D Tag: msg", RejectTid},
		{"no separator", "03-17 16:13:38.811  1702  2395 D Tag message", RejectNoSeparator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, got := Parse([]byte(tt.line))
			if got != tt.want {
				t.Errorf("Parse(%q) outcome = %s, want %s", tt.line, got, tt.want)
			}
			if entry != (model.Entry{}) {
				t.Errorf("rejected line produced a non-zero entry: %+v", entry)
			}
		})
	}
}

func TestParse_LeadingNoise(t *testing.T) {
	entry, outcome := Parse([]byte("garbage" + validLine))
	if outcome != Parsed {
		t.Fatalf("Expected Parsed, got %s", outcome)
	}
	if entry.LogDate != "03-17 16:13:38.811" || entry.Component != "WindowManager" {
		t.Errorf("noise was not skipped: %+v", entry)
	}
}

func TestParse_AngleSeparator(t *testing.T) {
	entry, outcome := Parse([]byte("03-17 16:13:38.811  1702  2395 I chatty> uid=1000  expire 3 lines "))
	if outcome != Parsed {
		t.Fatalf("Expected Parsed, got %s", outcome)
	}
	if entry.Component != "chatty" {
		t.Errorf("Component = %q, want %q", entry.Component, "chatty")
	}
	if entry.Content != "uid=1000  expire 3 lines" {
		t.Errorf("Content = %q", entry.Content)
	}
}

func TestParse_ColonWinsOverAngle(t *testing.T) {
	entry, _ := Parse([]byte("03-17 16:13:38.811  1702  2395 W a>b: c"))
	if entry.Component != "a>b" || entry.Content != "c" {
		t.Errorf("got component=%q content=%q", entry.Component, entry.Content)
	}
}

func TestParse_NegativeAndBoundaryIDs(t *testing.T) {
	entry, outcome := Parse([]byte("03-17 16:13:38.811 32767 -3276 E Tag: x"))
	if outcome != Parsed {
		t.Fatalf("Expected Parsed, got %s", outcome)
	}
	if entry.Pid != 32767 || entry.Tid != -3276 {
		t.Errorf("got pid=%d tid=%d", entry.Pid, entry.Tid)
	}
}

func TestParse_DoesNotRetainInput(t *testing.T) {
	buf := []byte(validLine)
	entry, _ := Parse(buf)
	for i := range buf {
		buf[i] = 'z'
	}
	if entry.Component != "WindowManager" || entry.LogDate != "03-17 16:13:38.811" {
		t.Errorf("entry aliases the input buffer: %+v", entry)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	line := []byte("03-17 16:13:38.811  1702  2395 D Tag\xff: bad \xc3 bytes")
	entry, outcome := Parse(line)
	if outcome != Parsed {
		t.Fatalf("expected parsed, got %s", outcome)
	}
	if entry.Component != "Tag\uFFFD" {
		t.Errorf("component: got %q", entry.Component)
	}
	if entry.Content != "bad \uFFFD bytes" {
		t.Errorf("content: got %q", entry.Content)
	}
	for _, s := range []string{entry.LogDate, entry.Component, entry.Content} {
		if !utf8.ValidString(s) {
			t.Errorf("%q is not valid UTF-8", s)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	lines := []string{validLine, "garbage", strings.Repeat("1", 40)}
	for _, l := range lines {
		e1, o1 := Parse([]byte(l))
		e2, o2 := Parse([]byte(l))
		if e1 != e2 || o1 != o2 {
			t.Errorf("Parse(%q) is not deterministic", l)
		}
	}
}

func TestOutcome_String(t *testing.T) {
	if Parsed.String() != "parsed" || RejectNoSeparator.String() != "no_separator" {
		t.Errorf("unexpected names: %s %s", Parsed, RejectNoSeparator)
	}
	if Outcome(200).String() != "unknown" {
		t.Errorf("out of range outcome should be unknown")
	}
	if len(Rejections()) != int(OutcomeCount)-1 {
		t.Errorf("Rejections() does not cover every reject outcome")
	}
}

func BenchmarkParse(b *testing.B) {
	line := []byte("\x1b[0;32m" + validLine)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(line)
	}
}
