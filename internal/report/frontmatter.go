package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the optional YAML header of a report file.
type Frontmatter struct {
	Name       string `yaml:"name"`
	Status     string `yaml:"status"`
	AlertCount *int   `yaml:"alert_count"`
	Timestamp  string `yaml:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time parses the timestamp field. ok is false when it is absent or invalid.
func (f Frontmatter) Time() (t time.Time, ok bool) {
	s := strings.TrimSpace(f.Timestamp)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SplitFrontmatter separates a leading YAML block (between --- lines) from
// the report body. Without a closing delimiter the whole input is body.
// Invalid YAML is reported as an error together with the full input as body.
func SplitFrontmatter(data []byte) (Frontmatter, string, error) {
	const delim = "---"
	var fm Frontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), nil
	}

	yamlBlock := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return Frontmatter{}, string(data), fmt.Errorf("report: frontmatter: %w", err)
	}
	return fm, body, nil
}
