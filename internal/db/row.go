package db

import (
	"maps"

	"identity-link/internal/auth"
)

const idField = "id"

// Row is one record of a TableSpec. It implements auth.Entity.
type Row struct {
	spec   *TableSpec
	fields map[string]string
}

var _ auth.Entity = (*Row)(nil)

func newRow(spec *TableSpec) *Row {
	return &Row{spec: spec, fields: make(map[string]string, len(spec.Columns)+1)}
}

func (r *Row) ID() string {
	return r.fields[idField]
}

func (r *Row) Get(field string) (string, bool) {
	if field != idField && !r.spec.hasColumn(field) {
		return "", false
	}
	return r.fields[field], true
}

func (r *Row) Set(field, value string) bool {
	if field != idField && !r.spec.hasColumn(field) {
		return false
	}
	r.fields[field] = value
	return true
}

func (r *Row) Fields() map[string]string {
	return maps.Clone(r.fields)
}
