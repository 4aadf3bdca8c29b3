package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrNoCanonicalBranch = errors.New("no canonical branch for origin")
	ErrUnsupportedFormat = errors.New("unsupported metadata format")
	ErrAuthorityMismatch = errors.New("metadata authority does not match origin")
)

// ParseError reports a malformed metadata file. It is terminal for the file
// it names but never aborts the surrounding batch.
type ParseError struct {
	Ecosystem string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s metadata: %v", e.Ecosystem, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReferentialIntegrityError reports a fact row referencing a tool id that is
// not present in the tool registry. The offending entry is rejected before
// commit; remaining entries in the batch proceed.
type ReferentialIntegrityError struct {
	ToolID int64
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("fact references unknown tool id %d", e.ToolID)
}

// DuplicateIDError reports the same (object, tool) key appearing more than
// once where the caller promised unique keys.
type DuplicateIDError struct {
	Key string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate key %s in batch", e.Key)
}
