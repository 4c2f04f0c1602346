package chronodex

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaConflict signals duplicate column names across the reserved
	// time column, the known dimensions, and the aggregator outputs.
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrNotFound signals a missing datasource.
	ErrNotFound = errors.New("datasource not found")
	// ErrAlreadyExists signals a duplicate datasource.
	ErrAlreadyExists = errors.New("datasource already exists")
	// ErrInvalidSpec signals an invalid datasource definition.
	ErrInvalidSpec = errors.New("invalid spec")
)

// SchemaConflictError wraps ErrSchemaConflict with every name that appears
// more than once in the combined column namespace, so a caller can fix all
// conflicts in one pass.
type SchemaConflictError struct {
	Duplicates []string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("%s: duplicate column names: %s",
		ErrSchemaConflict.Error(), strings.Join(e.Duplicates, ", "))
}

func (e *SchemaConflictError) Unwrap() error { return ErrSchemaConflict }
