package translator

import (
	"github.com/sourcearchive/indexer/pkg/apperrors"
)

// Translator maps one file's raw bytes into a normalized metadata document.
// The ecosystem set is closed; dispatch is a switch, not reflection.
type Translator struct{}

// New creates a Translator.
func New() *Translator {
	return &Translator{}
}

// Translate parses raw according to the ecosystem's format and maps the
// recognized fields into the normalized vocabulary. A malformed file yields
// a *apperrors.ParseError; an ecosystem this build does not know yields
// apperrors.ErrUnsupportedFormat. Either way the error is scoped to this
// one file - callers continue with their remaining files.
func (t *Translator) Translate(raw []byte, eco Ecosystem) (Document, error) {
	switch eco {
	case EcosystemNpm:
		return translateNpm(raw)
	case EcosystemPython:
		return translatePythonPkgInfo(raw)
	case EcosystemMaven:
		return translateMavenPom(raw)
	case EcosystemRubyGem:
		return translateGemspec(raw)
	case EcosystemCargo:
		return translateCargo(raw)
	case EcosystemComposer:
		return translateComposer(raw)
	case EcosystemCodemeta:
		return translateCodemeta(raw)
	default:
		return nil, apperrors.ErrUnsupportedFormat
	}
}
