package quality

import (
	"strings"
	"testing"
)

func TestScore(t *testing.T) {
	long := strings.Repeat("a detailed explanation of the change ", 20)

	tests := []struct {
		name   string
		output string
		check  func(float64) bool
		desc   string
	}{
		{
			name:   "empty output",
			output: "   ",
			check:  func(s float64) bool { return s == 0 },
			desc:   "= 0",
		},
		{
			name:   "stub marker penalized",
			output: "func handler() { // TODO: implement the rest of this later }",
			check:  func(s float64) bool { return s < DefaultSignal },
			desc:   "< default",
		},
		{
			name:   "very short answer penalized",
			output: "done",
			check:  func(s float64) bool { return s < DefaultSignal },
			desc:   "< default",
		},
		{
			name:   "substantive answer rewarded",
			output: long,
			check:  func(s float64) bool { return s > DefaultSignal },
			desc:   "> default",
		},
		{
			name:   "balanced code fences rewarded",
			output: long + "\n```go\nfunc main() {}\n```",
			check:  func(s float64) bool { return s > DefaultSignal+0.1 },
			desc:   "> default+0.1",
		},
		{
			name:   "truncated fence penalized",
			output: long + "\n```go\nfunc main() {",
			check:  func(s float64) bool { return s < DefaultSignal },
			desc:   "< default",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.output)
			if got < 0 || got > 1 {
				t.Fatalf("Score() = %v, outside [0,1]", got)
			}
			if !tt.check(got) {
				t.Errorf("Score() = %v, want %s", got, tt.desc)
			}
		})
	}
}

func TestFromResult(t *testing.T) {
	reported := 0.95
	if got := FromResult(&reported, "ignored"); got != 0.95 {
		t.Errorf("FromResult(reported) = %v, want 0.95", got)
	}

	tooHigh := 3.0
	if got := FromResult(&tooHigh, ""); got != 1 {
		t.Errorf("FromResult(3.0) = %v, want clamped 1", got)
	}

	negative := -0.5
	if got := FromResult(&negative, ""); got != 0 {
		t.Errorf("FromResult(-0.5) = %v, want clamped 0", got)
	}

	if got := FromResult(nil, ""); got != 0 {
		t.Errorf("FromResult(nil, empty) = %v, want derived 0", got)
	}
}
