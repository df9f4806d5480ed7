package testrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		parser string
		want   Counts
	}{
		{
			name: "jest",
			output: `PASS src/a.test.ts
FAIL src/b.test.ts
Test Suites: 1 failed, 1 passed, 2 total
Tests:       1 failed, 2 skipped, 5 passed, 8 total
Snapshots:   0 total`,
			parser: "jest",
			want:   Counts{Total: 8, Passed: 5, Failed: 1, Skipped: 2},
		},
		{
			name:   "jest all passing",
			output: "Tests:       12 passed, 12 total\n",
			parser: "jest",
			want:   Counts{Total: 12, Passed: 12},
		},
		{
			name: "vitest",
			output: ` Test Files  1 failed | 3 passed (4)
      Tests  2 failed | 10 passed (12)
   Start at  10:00:00`,
			parser: "vitest",
			want:   Counts{Total: 12, Passed: 10, Failed: 2},
		},
		{
			name: "mocha",
			output: `  parseConfig
    ✓ handles null
  7 passing (30ms)
  1 failing
  2 pending`,
			parser: "mocha",
			want:   Counts{Total: 10, Passed: 7, Failed: 1, Skipped: 2},
		},
		{
			name:   "pytest",
			output: "collected 6 items\n\n========== 4 passed, 1 failed, 1 skipped in 0.42s ==========\n",
			parser: "pytest",
			want:   Counts{Total: 6, Passed: 4, Failed: 1, Skipped: 1},
		},
		{
			name: "go test",
			output: `=== RUN   TestA
--- PASS: TestA (0.00s)
=== RUN   TestB
--- FAIL: TestB (0.00s)
FAIL
FAIL	example.com/pkg	0.01s`,
			parser: "generic",
			want:   Counts{Total: 4, Passed: 1, Failed: 3},
		},
		{
			name:   "glyphs",
			output: "  ✓ one\n  ✔ two\n  ✗ three\n",
			parser: "glyphs",
			want:   Counts{Total: 3, Passed: 2, Failed: 1},
		},
		{
			name:   "unrecognized",
			output: "build finished\n",
			parser: "",
			want:   Counts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, parser := ParseOutput(tt.output)
			assert.Equal(t, tt.parser, parser)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutput_JestWinsOverGlyphs(t *testing.T) {
	output := "  ✓ a\n  ✕ b\nTests:       1 failed, 1 passed, 2 total\n"
	c, parser := ParseOutput(output)
	assert.Equal(t, "jest", parser)
	assert.Equal(t, 2, c.Total)
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "Tests: 1 passed", stripANSI("\x1b[1mTests:\x1b[22m 1 passed"))
}
