package translator

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/sourcearchive/indexer/pkg/apperrors"
)

// pythonCrosswalk maps PKG-INFO headers to normalized terms.
var pythonCrosswalk = map[string]string{
	"Name":         "name",
	"Version":      "version",
	"Summary":      "description",
	"Home-page":    "url",
	"License":      "license",
	"Author":       "author",
	"Author-email": "email",
}

// translatePythonPkgInfo parses the RFC 822 style headers of a PKG-INFO
// file (PEP 566 core metadata). Continuation lines and the optional body
// after the blank line are ignored; Keywords are split on commas.
func translatePythonPkgInfo(raw []byte) (Document, error) {
	doc := Document{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		sawHeader = true
		value = strings.TrimSpace(value)
		if value == "" || value == "UNKNOWN" {
			continue
		}

		if term, ok := pythonCrosswalk[key]; ok {
			if term == "author" {
				doc[term] = map[string]any{"name": value}
			} else {
				doc[term] = value
			}
			continue
		}
		if key == "Keywords" {
			keywords := []any{}
			for _, kw := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
				keywords = append(keywords, kw)
			}
			if len(keywords) > 0 {
				doc["keywords"] = keywords
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &apperrors.ParseError{Ecosystem: string(EcosystemPython), Err: err}
	}
	if !sawHeader {
		return Document{}, nil
	}
	return doc, nil
}
