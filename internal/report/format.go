// Package report turns the free-text content of an intelligence report into
// per-integration sections and renders them for export.
//
// Content convention:
//
//	## <Integration title>
//	**Release Date:** 2026-02-01 | **Type:** Breaking Change | **Impact:** High
//	### Summary
//	### Technical Details
//	### Logiwa Impact
//	### Action Required   (or Recommended Action)
//
// Text before the first level-2 header is ignored.
package report

import (
	"fmt"
	"strings"
)

// Kind tags a parse result.
type Kind int

const (
	Parsed Kind = iota
	Empty
	Unparseable
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Empty:
		return "empty"
	case Unparseable:
		return "unparseable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Section is one integration block of a report.
type Section struct {
	Title          string   `json:"title"`
	ReleaseDate    string   `json:"releaseDate"`
	Type           string   `json:"type"`
	Impact         string   `json:"impact"`
	Summary        string   `json:"summary"`
	Details        []string `json:"details"`
	LogiwaImpact   string   `json:"logiwaImpact"`
	ActionRequired string   `json:"actionRequired"`
	Logo           string   `json:"logo,omitempty"`
}

// Result is the outcome of Parse. Sections is set only for Parsed.
type Result struct {
	Kind     Kind      `json:"kind"`
	Sections []Section `json:"sections"`
	Err      error     `json:"-"`
}

// HasContent reports whether there is anything to render.
func (r Result) HasContent() bool {
	return r.Kind == Parsed && len(r.Sections) > 0
}

// Default marker values.
const (
	DefaultImpact = "Low"
	DefaultNA     = "N/A"
)

type block int

const (
	blockSummary block = iota
	blockDetails
	blockImpact
	blockAction
	blockCount
)

var subHeaders = map[string]block{
	"summary":            blockSummary,
	"technical details":  blockDetails,
	"logiwa impact":      blockImpact,
	"action required":    blockAction,
	"recommended action": blockAction,
}

// Parse splits content into sections. It never panics; a failure while
// parsing yields an Unparseable result carrying the error.
func Parse(content string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Kind: Unparseable, Err: fmt.Errorf("report: parse: %v", r)}
		}
	}()

	if strings.TrimSpace(content) == "" {
		return Result{Kind: Empty}
	}

	chunks := splitSections(strings.ReplaceAll(content, "\r\n", "\n"))
	if len(chunks) == 0 {
		return Result{Kind: Unparseable, Err: fmt.Errorf("report: no level-2 header found")}
	}

	sections := make([]Section, 0, len(chunks))
	for _, lines := range chunks {
		sections = append(sections, parseSection(lines))
	}
	return Result{Kind: Parsed, Sections: sections}
}

// splitSections returns the lines of each level-2 section, title line first,
// with the "## " prefix removed from the title.
func splitSections(content string) [][]string {
	var chunks [][]string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			chunks = append(chunks, []string{strings.TrimSpace(trimmed[3:])})
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		chunks[len(chunks)-1] = append(chunks[len(chunks)-1], line)
	}
	return chunks
}

func parseSection(lines []string) Section {
	title := lines[0]
	body := lines[1:]

	s := Section{
		Title:       title,
		ReleaseDate: DefaultNA,
		Type:        DefaultNA,
		Impact:      DefaultImpact,
		Details:     []string{},
		Logo:        LogoFor(title),
	}

	for _, line := range body {
		if isMarkerLine(line) {
			applyMarker(&s, line)
			break
		}
	}

	var starts [blockCount]int
	for i := range starts {
		starts[i] = -1
	}
	for i, line := range body {
		b, ok := subHeaderOf(line)
		if ok && starts[b] < 0 {
			starts[b] = i
		}
	}

	blockLines := func(b block) []string {
		from := starts[b]
		if from < 0 {
			return nil
		}
		to := len(body)
		for _, other := range starts {
			if other > from && other < to {
				to = other
			}
		}
		return body[from+1 : to]
	}

	s.Summary = joinTrimmed(blockLines(blockSummary))
	s.LogiwaImpact = joinTrimmed(blockLines(blockImpact))
	for _, line := range blockLines(blockDetails) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") && !isRule(trimmed) {
			s.Details = append(s.Details, strings.TrimSpace(trimmed[1:]))
		}
	}
	var action []string
	for _, line := range blockLines(blockAction) {
		trimmed := strings.TrimSpace(line)
		if isRule(trimmed) {
			break
		}
		action = append(action, strings.TrimSpace(strings.TrimLeft(trimmed, "> ")))
	}
	s.ActionRequired = joinTrimmed(action)
	return s
}

func isMarkerLine(line string) bool {
	stripped := strings.TrimLeft(line, "*>- \t")
	return strings.HasPrefix(strings.ToLower(stripped), "release date")
}

func applyMarker(s *Section, line string) {
	for _, part := range strings.Split(line, "|") {
		part = strings.TrimSpace(strings.ReplaceAll(part, "*", ""))
		part = strings.TrimLeft(part, ">- ")
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "release date":
			s.ReleaseDate = value
		case "type":
			s.Type = value
		case "impact":
			s.Impact = value
		}
	}
}

// subHeaderOf recognises "### Summary", "# Summary:" and "**Summary**".
func subHeaderOf(line string) (block, bool) {
	trimmed := strings.TrimSpace(line)
	bold := strings.HasPrefix(trimmed, "**") &&
		(strings.HasSuffix(trimmed, "**") || strings.HasSuffix(trimmed, "**:"))
	if !strings.HasPrefix(trimmed, "#") && !bold {
		return 0, false
	}
	text := strings.Trim(trimmed, "#* \t")
	text = strings.TrimSuffix(text, ":")
	text = strings.Trim(text, "* \t")
	b, ok := subHeaders[strings.ToLower(text)]
	return b, ok
}

func isRule(trimmed string) bool {
	if len(trimmed) < 3 {
		return false
	}
	for _, marker := range []string{"-", "*", "_"} {
		if strings.Trim(trimmed, marker) == "" {
			return true
		}
	}
	return false
}

func joinTrimmed(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
