package translator

import (
	"encoding/json"
	"strings"

	"github.com/sourcearchive/indexer/pkg/apperrors"
)

// translateCodemeta handles codemeta.json, which is already expressed in the
// normalized vocabulary. Fields pass through with the JSON-LD scaffolding
// (@context, @type prefixes) stripped.
func translateCodemeta(raw []byte) (Document, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &apperrors.ParseError{Ecosystem: string(EcosystemCodemeta), Err: err}
	}

	doc := Document{}
	for k, v := range m {
		if strings.HasPrefix(k, "@") || v == nil {
			continue
		}
		// "schema:name" and "codemeta:name" both mean "name".
		if _, term, ok := strings.Cut(k, ":"); ok {
			k = term
		}
		doc[k] = v
	}
	return doc, nil
}
