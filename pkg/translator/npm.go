package translator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/jsonutil"
)

// npmCrosswalk maps package.json fields that carry over verbatim.
var npmCrosswalk = map[string]string{
	"name":        "name",
	"version":     "version",
	"description": "description",
	"homepage":    "url",
	"keywords":    "keywords",
	"license":     "license",
}

var npmRepoShortcuts = map[string]string{
	"github": "git+https://github.com/%s.git",
	"gist":   "git+https://gist.github.com/%s.git",
	"gitlab": "git+https://gitlab.com/%s.git",
	// Bitbucket shortcuts are ambiguous between hg and git, so they are
	// not expanded.
}

var npmAuthorRe = regexp.MustCompile(`^ *(.*?)(?: +<(.*)>)?(?: +\((.*)\))? *$`)

func translateNpm(raw []byte) (Document, error) {
	var pkg map[string]any
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, &apperrors.ParseError{Ecosystem: string(EcosystemNpm), Err: err}
	}

	doc := Document{}
	for src, term := range npmCrosswalk {
		if v, ok := pkg[src]; ok && v != nil {
			doc[term] = v
		}
	}

	// Published packages occasionally carry a numeric version; normalize
	// to the string every other ecosystem produces.
	if v, ok := pkg["version"]; ok {
		if s, isScalar := jsonutil.CoerceString(v); isScalar {
			doc["version"] = s
		}
	}

	if repo := normalizeNpmRepository(pkg["repository"]); repo != "" {
		doc["codeRepository"] = repo
	}
	if bugs := normalizeNpmBugs(pkg["bugs"]); bugs != "" {
		doc["issueTracker"] = bugs
	}
	if author := normalizeNpmPerson(pkg["author"]); author != nil {
		doc["author"] = author
	}

	return doc, nil
}

// normalizeNpmRepository handles the object form, full URLs, and the
// forge shortcut syntax ("gitlab:foo/bar", bare "foo/bar" meaning GitHub).
// See https://docs.npmjs.com/files/package.json#repository
func normalizeNpmRepository(v any) string {
	switch d := v.(type) {
	case map[string]any:
		typ, _ := d["type"].(string)
		url, _ := d["url"].(string)
		if typ != "" && url != "" {
			return typ + "+" + url
		}
		return url
	case string:
		if strings.Contains(d, "://") {
			return d
		}
		if schema, rest, ok := strings.Cut(d, ":"); ok {
			if pattern, known := npmRepoShortcuts[schema]; known {
				return fmt.Sprintf(pattern, rest)
			}
			return ""
		}
		return fmt.Sprintf(npmRepoShortcuts["github"], d)
	default:
		return ""
	}
}

func normalizeNpmBugs(v any) string {
	switch d := v.(type) {
	case map[string]any:
		url, _ := d["url"].(string)
		return url
	case string:
		return d
	default:
		return ""
	}
}

// normalizeNpmPerson parses the "Name <email> (url)" author string form, or
// passes the object form's recognized fields through.
func normalizeNpmPerson(v any) any {
	switch d := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for _, k := range []string{"name", "email", "url"} {
			if s, ok := d[k].(string); ok && s != "" {
				out[k] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		m := npmAuthorRe.FindStringSubmatch(d)
		if m == nil || m[1] == "" {
			return nil
		}
		out := map[string]any{"name": m[1]}
		if m[2] != "" {
			out["email"] = m[2]
		}
		if m[3] != "" {
			out["url"] = m[3]
		}
		return out
	default:
		return nil
	}
}
