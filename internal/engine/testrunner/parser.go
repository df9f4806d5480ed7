package testrunner

import (
	"regexp"
	"strconv"
	"strings"
)

// Counts are the test totals extracted from runner output
type Counts struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// Parser extracts counts from test output. ok is false when the format is not recognized.
type Parser struct {
	Name  string
	Parse func(output string) (Counts, bool)
}

// Parsers is the ordered parser chain; the first parser that recognizes the output wins
var Parsers = []Parser{
	{Name: "jest", Parse: parseJest},
	{Name: "vitest", Parse: parseVitest},
	{Name: "mocha", Parse: parseMocha},
	{Name: "pytest", Parse: parsePytest},
	{Name: "generic", Parse: parseGeneric},
	{Name: "glyphs", Parse: parseGlyphs},
}

// ParseOutput runs the parser chain over output. No match yields zero counts and an empty name.
func ParseOutput(output string) (Counts, string) {
	for _, p := range Parsers {
		if c, ok := p.Parse(output); ok {
			return c, p.Name
		}
	}
	return Counts{}, ""
}

var (
	jestLine    = regexp.MustCompile(`(?m)^\s*Tests:\s+(.*\d+ total.*)$`)
	vitestLine  = regexp.MustCompile(`(?m)^\s*Tests\s+(.+?)\s+\((\d+)\)\s*$`)
	pytestLine  = regexp.MustCompile(`(?m)^=+ (.*\d+ (?:passed|failed).*) in [\d.]+s`)
	failedRe    = regexp.MustCompile(`(\d+) failed`)
	passedRe    = regexp.MustCompile(`(\d+) passed`)
	skippedRe   = regexp.MustCompile(`(\d+) skipped`)
	totalRe     = regexp.MustCompile(`(\d+) total`)
	mochaPass   = regexp.MustCompile(`(?m)^\s*(\d+) passing`)
	mochaFail   = regexp.MustCompile(`(?m)^\s*(\d+) failing`)
	mochaSkip   = regexp.MustCompile(`(?m)^\s*(\d+) pending`)
	ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func withTotal(c Counts) Counts {
	if c.Total == 0 {
		c.Total = c.Passed + c.Failed + c.Skipped
	}
	return c
}

// parseJest reads "Tests:       1 failed, 2 skipped, 5 passed, 8 total"
func parseJest(output string) (Counts, bool) {
	ms := jestLine.FindAllStringSubmatch(output, -1)
	if ms == nil {
		return Counts{}, false
	}
	line := ms[len(ms)-1][1]
	return withTotal(Counts{
		Total:   firstInt(totalRe, line),
		Passed:  firstInt(passedRe, line),
		Failed:  firstInt(failedRe, line),
		Skipped: firstInt(skippedRe, line),
	}), true
}

// parseVitest reads "      Tests  2 failed | 10 passed (12)"
func parseVitest(output string) (Counts, bool) {
	ms := vitestLine.FindAllStringSubmatch(output, -1)
	if ms == nil {
		return Counts{}, false
	}
	m := ms[len(ms)-1]
	total, _ := strconv.Atoi(m[2])
	return withTotal(Counts{
		Total:   total,
		Passed:  firstInt(passedRe, m[1]),
		Failed:  firstInt(failedRe, m[1]),
		Skipped: firstInt(skippedRe, m[1]),
	}), true
}

// parseMocha reads "  5 passing (20ms)", "  1 failing", "  2 pending"
func parseMocha(output string) (Counts, bool) {
	if !mochaPass.MatchString(output) && !mochaFail.MatchString(output) {
		return Counts{}, false
	}
	return withTotal(Counts{
		Passed:  firstInt(mochaPass, output),
		Failed:  firstInt(mochaFail, output),
		Skipped: firstInt(mochaSkip, output),
	}), true
}

// parsePytest reads "==== 3 passed, 1 failed, 2 skipped in 0.12s ===="
func parsePytest(output string) (Counts, bool) {
	ms := pytestLine.FindAllStringSubmatch(output, -1)
	if ms == nil {
		return Counts{}, false
	}
	line := ms[len(ms)-1][1]
	return withTotal(Counts{
		Passed:  firstInt(passedRe, line),
		Failed:  firstInt(failedRe, line),
		Skipped: firstInt(skippedRe, line),
	}), true
}

// parseGeneric counts PASS/ok and FAIL lines, as printed by go test -v and jest per-file output
func parseGeneric(output string) (Counts, bool) {
	var c Counts
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "--- PASS"), strings.HasPrefix(line, "PASS "), line == "PASS",
			strings.HasPrefix(line, "ok "), strings.HasPrefix(line, "ok\t"):
			c.Passed++
		case strings.HasPrefix(line, "--- FAIL"), strings.HasPrefix(line, "FAIL "), strings.HasPrefix(line, "FAIL\t"), line == "FAIL":
			c.Failed++
		case strings.HasPrefix(line, "--- SKIP"):
			c.Skipped++
		}
	}
	if c.Passed+c.Failed == 0 {
		return Counts{}, false
	}
	return withTotal(c), true
}

// parseGlyphs counts check and cross marks
func parseGlyphs(output string) (Counts, bool) {
	c := Counts{
		Passed: strings.Count(output, "✓") + strings.Count(output, "✔"),
		Failed: strings.Count(output, "✗") + strings.Count(output, "✕") + strings.Count(output, "✘"),
	}
	if c.Passed+c.Failed == 0 {
		return Counts{}, false
	}
	return withTotal(c), true
}

// stripANSI removes color escape sequences so the line anchored patterns match
func stripANSI(s string) string {
	return ansiEscapes.ReplaceAllString(s, "")
}
