package translator

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/sourcearchive/indexer/pkg/apperrors"
)

type cargoManifest struct {
	Package struct {
		Name        string   `toml:"name"`
		Version     string   `toml:"version"`
		Description string   `toml:"description"`
		Homepage    string   `toml:"homepage"`
		Repository  string   `toml:"repository"`
		License     string   `toml:"license"`
		Keywords    []string `toml:"keywords"`
		Authors     []string `toml:"authors"`
	} `toml:"package"`
}

func translateCargo(raw []byte) (Document, error) {
	var m cargoManifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, &apperrors.ParseError{Ecosystem: string(EcosystemCargo), Err: err}
	}

	p := m.Package
	doc := Document{}
	if p.Name != "" {
		doc["name"] = p.Name
	}
	if p.Version != "" {
		doc["version"] = p.Version
	}
	if p.Description != "" {
		doc["description"] = p.Description
	}
	if p.Homepage != "" {
		doc["url"] = p.Homepage
	}
	if p.Repository != "" {
		doc["codeRepository"] = p.Repository
	}
	if p.License != "" {
		doc["license"] = p.License
	}
	if len(p.Keywords) > 0 {
		keywords := make([]any, 0, len(p.Keywords))
		for _, kw := range p.Keywords {
			keywords = append(keywords, kw)
		}
		doc["keywords"] = keywords
	}
	if len(p.Authors) > 0 {
		// Cargo authors use the same "Name <email>" convention as npm.
		if author := normalizeNpmPerson(p.Authors[0]); author != nil {
			doc["author"] = author
		}
	}

	return doc, nil
}
