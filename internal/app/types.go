package app

import (
	"identity-link/internal/auth"
	"identity-link/internal/db"
)

// LocalType pairs a linkage declaration with the table holding its records.
// Callers linked to a record of an Admin type manage records of every type.
type LocalType struct {
	Declaration *auth.Declaration
	Table       db.TableSpec
	Admin       bool
}

// LocalTypes returns the record types linked to the directory.
func LocalTypes() []LocalType {
	return []LocalType{
		{
			Declaration: auth.NewDeclaration("users",
				auth.VerifyEmail(),
				auth.WithAttribute("role", auth.Literal("user")),
				auth.WithAttribute("name", auth.FieldRef("name")),
			),
			Table: db.Users,
		},
		{
			Declaration: auth.NewDeclaration("admins",
				auth.WithExternalIDField("cognito_id"),
				auth.VerifyEmail(),
				auth.VerifyPhone(),
				auth.WithAttribute("role", auth.Literal("admin")),
			),
			Table: db.Admins,
			Admin: true,
		},
	}
}

// AdminTypes names the local types whose records grant admin rights.
func AdminTypes() []string {
	var names []string
	for _, t := range LocalTypes() {
		if t.Admin {
			names = append(names, t.Declaration.Name)
		}
	}
	return names
}
