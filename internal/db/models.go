package db

// TableSpec describes a local table whose rows can be linked to remote
// identities. Every column is text; "id" is implicit.
type TableSpec struct {
	Name     string
	Columns  []string
	Required []string
	Unique   []string // compared case-insensitively
}

// Users are application accounts linked through external_id.
var Users = TableSpec{
	Name:     "users",
	Columns:  []string{"email", "name", "external_id"},
	Required: []string{"email"},
	Unique:   []string{"email", "external_id"},
}

// Admins are back-office accounts linked through cognito_id.
var Admins = TableSpec{
	Name:     "admins",
	Columns:  []string{"email", "phone", "cognito_id"},
	Required: []string{"email", "phone"},
	Unique:   []string{"email", "phone", "cognito_id"},
}

func (s TableSpec) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}
