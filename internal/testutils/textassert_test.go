package testutils

import (
	"strings"
	"testing"
)

// recorder captures Errorf calls so assertions on the asserter itself can
// run without failing the real test.
type recorder struct {
	failures []string
}

func (r *recorder) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, format)
}

func TestAssertPassesOnEqualText(t *testing.T) {
	rec := &recorder{}
	ta := &TextAsserter{t: rec, options: TextAssertOptions{TrimSpace: true, IgnoreTrailingWhitespace: true}}

	ta.Assert("a\nb\n", "a\nb\n")
	if len(rec.failures) != 0 {
		t.Errorf("expected no failures, got %d", len(rec.failures))
	}
}

func TestAssertNormalizesTrailingWhitespace(t *testing.T) {
	rec := &recorder{}
	ta := &TextAsserter{t: rec, options: TextAssertOptions{IgnoreTrailingWhitespace: true}}

	ta.Assert("a  \nb\t\n", "a\nb\n")
	if len(rec.failures) != 0 {
		t.Errorf("trailing whitespace should not fail the assertion")
	}
}

func TestAssertReportsDiff(t *testing.T) {
	rec := &recorder{}
	ta := &TextAsserter{t: rec, options: TextAssertOptions{}}

	ta.Assert("a\nb\n", "a\nc\n")
	if len(rec.failures) != 1 {
		t.Fatalf("expected one failure, got %d", len(rec.failures))
	}
}

func TestDiffIsUnified(t *testing.T) {
	ta := &TextAsserter{t: t, options: TextAssertOptions{}}

	diff := ta.diff("new line\n", "old line\n")
	if !strings.Contains(diff, "-old line") || !strings.Contains(diff, "+new line") {
		t.Errorf("unexpected diff output:\n%s", diff)
	}
}

func TestIgnoreEmptyLines(t *testing.T) {
	rec := &recorder{}
	ta := NewTextAsserter(t)
	ta.t = rec
	ta.WithOptions(WithIgnoreEmptyLines(true))

	ta.Assert("a\n\nb", "a\nb")
	if len(rec.failures) != 0 {
		t.Errorf("empty lines should be ignored")
	}
}

func TestFrameBuilderPayloadLayout(t *testing.T) {
	payload := NewFrameBuilder().
		WithFlags(0x06).
		WithName("hub").
		Payload()

	want := []byte{0x02, 0x01, 0x06, 0x04, 0x09, 'h', 'u', 'b'}
	if len(payload) != len(want) {
		t.Fatalf("payload length %d, want %d", len(payload), len(want))
	}
	for i := range want {
		if payload[i] != want[i] {
			t.Fatalf("payload[%d] = 0x%02X, want 0x%02X", i, payload[i], want[i])
		}
	}
}
