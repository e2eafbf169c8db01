package auth

import "time"

// Standard attribute names understood by the directory service.
const (
	AttrEmail               = "email"
	AttrPhoneNumber         = "phone_number"
	AttrEmailVerified       = "email_verified"
	AttrPhoneNumberVerified = "phone_number_verified"
	AttrSub                 = "sub"
)

// CustomAttributePrefix namespaces every non-standard attribute name.
const CustomAttributePrefix = "custom:"

// Attribute is one name/value pair of a remote identity.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RemoteUser represents a raw identity as returned by the directory service.
// It contains facts only, no decisions.
type RemoteUser struct {
	Username   string      // directory-scoped identifier (the external id)
	Attributes []Attribute // ordered as returned by the directory
	Status     string      // e.g. "CONFIRMED", "FORCE_CHANGE_PASSWORD"
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Attribute returns the value of the named attribute.
func (u *RemoteUser) Attribute(name string) (string, bool) {
	if u == nil {
		return "", false
	}
	return FindAttribute(u.Attributes, name)
}

// FindAttribute looks up the first attribute with the given name.
func FindAttribute(attrs []Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
