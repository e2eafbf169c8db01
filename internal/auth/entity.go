package auth

import "context"

// Entity is a local record that can be linked to a remote identity.
// Field names are those of the local type (e.g. "email", "external_id").
type Entity interface {
	// Get returns the field value and whether the local type has that field.
	Get(field string) (string, bool)

	// Set assigns a field and reports whether the local type has that field.
	Set(field, value string) bool

	// Fields returns a copy of all field values.
	Fields() map[string]string
}

// Hook is a lifecycle extension point run by a store inside its unit of work.
// A non-nil error aborts the surrounding local mutation.
type Hook func(ctx context.Context, e Entity) error
