package resolver

import (
	"context"
	"errors"

	"identity-link/internal/auth"
	"identity-link/internal/auth/linkage"
)

// DBResolver resolves subjects against the records of one local type,
// matching on the type's external id field.
type DBResolver struct {
	registry *linkage.Registry
	typeName string
}

// NewDBResolver resolves against typeName, or the registry's default type
// when typeName is empty.
func NewDBResolver(registry *linkage.Registry, typeName string) *DBResolver {
	return &DBResolver{registry: registry, typeName: typeName}
}

func (r *DBResolver) Resolve(ctx context.Context, subject string) (auth.Entity, error) {
	if subject == "" {
		return nil, errors.New("subject is empty")
	}

	var (
		l   *linkage.Linker
		err error
	)
	if r.typeName != "" {
		l, err = r.registry.Get(r.typeName)
	} else {
		l, err = r.registry.Default()
	}
	if err != nil {
		return nil, err
	}

	return l.FindByExternalID(ctx, subject)
}
