package translator

import "sort"

// Document is a translated metadata document in the normalized vocabulary.
// Keys are the shared terms (name, version, description, author, license,
// keywords, codeRepository, issueTracker, email, url, ...).
type Document map[string]any

// IsEmpty reports whether the translation produced no terms.
func (d Document) IsEmpty() bool { return len(d) == 0 }

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Terms returns the sorted keys, for deterministic iteration.
func (d Document) Terms() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge combines documents in order. On key collision the later document
// wins; callers pass documents in deterministic (file name) order so the
// result is deterministic too.
func Merge(docs ...Document) Document {
	out := Document{}
	for _, doc := range docs {
		for k, v := range doc {
			out[k] = v
		}
	}
	return out
}

// MergeValues concatenates two term values into a list, flattening lists on
// either side. Used when a single file carries several values for one term.
func MergeValues(v1, v2 any) any {
	if v1 == nil {
		return v2
	}
	if v2 == nil {
		return v1
	}
	out := []any{}
	if l, ok := v1.([]any); ok {
		out = append(out, l...)
	} else {
		out = append(out, v1)
	}
	if l, ok := v2.([]any); ok {
		out = append(out, l...)
	} else {
		out = append(out, v2)
	}
	return out
}
