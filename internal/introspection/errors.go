package introspection

import "errors"

var (
	// ErrDuplicateField is returned when two fields of one entity share a name.
	ErrDuplicateField = errors.New("duplicate field name")
	// ErrDuplicateEntity is returned when two entities share a name.
	ErrDuplicateEntity = errors.New("duplicate entity name")
	// ErrNoIdentifier is returned for entities without identifier fields.
	ErrNoIdentifier = errors.New("entity has no identifier")
	// ErrUnknownEntity is returned for lookups and relation targets that do not exist.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrEmbeddedCycle is returned when embeddable types contain themselves.
	ErrEmbeddedCycle = errors.New("embedded type cycle")
	// ErrInvalidRelation is returned for relations whose join cannot be resolved.
	ErrInvalidRelation = errors.New("invalid relation")
)
