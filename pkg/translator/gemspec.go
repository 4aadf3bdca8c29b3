package translator

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// gemspecAssignRe matches the common single-line gemspec assignments,
// e.g. `s.name = "foo"` or `spec.summary = 'bar'`.
var gemspecAssignRe = regexp.MustCompile(`^\s*\w+\.(\w+)\s*=\s*(.+?)\s*$`)

var gemspecCrosswalk = map[string]string{
	"name":        "name",
	"version":     "version",
	"summary":     "description",
	"description": "description",
	"homepage":    "url",
	"license":     "license",
	"email":       "email",
}

// translateGemspec extracts metadata from a .gemspec with a line-level
// scan. Gemspecs are Ruby programs, so only literal string assignments are
// recovered; anything computed at require time is out of reach.
func translateGemspec(raw []byte) (Document, error) {
	doc := Document{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		m := gemspecAssignRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		field, rhs := m[1], m[2]

		term, ok := gemspecCrosswalk[field]
		if !ok && field != "author" && field != "authors" {
			continue
		}

		switch field {
		case "author":
			if v := gemspecString(rhs); v != "" {
				doc["author"] = map[string]any{"name": v}
			}
		case "authors":
			if names := gemspecStringList(rhs); len(names) > 0 {
				doc["author"] = map[string]any{"name": names[0]}
			}
		default:
			if v := gemspecString(rhs); v != "" {
				// summary only fills description when nothing better
				// was seen yet.
				if field == "summary" {
					if _, exists := doc[term]; exists {
						continue
					}
				}
				doc[term] = v
			}
		}
	}
	// Scanner errors only occur on oversized lines; treat the file as
	// yielding whatever was recovered so far.
	return doc, nil
}

func gemspecString(rhs string) string {
	rhs = strings.TrimSpace(rhs)
	if len(rhs) >= 2 && (rhs[0] == '"' || rhs[0] == '\'') && rhs[len(rhs)-1] == rhs[0] {
		return rhs[1 : len(rhs)-1]
	}
	return ""
}

func gemspecStringList(rhs string) []string {
	rhs = strings.TrimSpace(rhs)
	if !strings.HasPrefix(rhs, "[") || !strings.HasSuffix(rhs, "]") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(rhs[1:len(rhs)-1], ",") {
		if v := gemspecString(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
