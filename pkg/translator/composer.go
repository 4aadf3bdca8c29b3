package translator

import (
	"encoding/json"

	"github.com/sourcearchive/indexer/pkg/apperrors"
)

var composerCrosswalk = map[string]string{
	"name":        "name",
	"version":     "version",
	"description": "description",
	"homepage":    "url",
	"license":     "license",
	"keywords":    "keywords",
}

func translateComposer(raw []byte) (Document, error) {
	var pkg map[string]any
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, &apperrors.ParseError{Ecosystem: string(EcosystemComposer), Err: err}
	}

	doc := Document{}
	for src, term := range composerCrosswalk {
		if v, ok := pkg[src]; ok && v != nil {
			doc[term] = v
		}
	}

	// composer.json lists authors as objects with name/email/homepage.
	if authors, ok := pkg["authors"].([]any); ok && len(authors) > 0 {
		if first, ok := authors[0].(map[string]any); ok {
			out := map[string]any{}
			for _, k := range []string{"name", "email"} {
				if s, ok := first[k].(string); ok && s != "" {
					out[k] = s
				}
			}
			if len(out) > 0 {
				doc["author"] = out
			}
		}
	}
	if support, ok := pkg["support"].(map[string]any); ok {
		if issues, ok := support["issues"].(string); ok && issues != "" {
			doc["issueTracker"] = issues
		}
	}

	return doc, nil
}
