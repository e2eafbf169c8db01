package auth

import "strings"

// DefaultExternalIDField is the local field holding the remote identity id
// unless a type overrides it.
const DefaultExternalIDField = "external_id"

// RuleValue is the value side of a custom attribute rule: either a Literal
// or a FieldRef. The set of implementations is closed.
type RuleValue interface {
	resolve(e Entity) (string, bool)
	literal() bool
}

// Literal is a fixed attribute value, identical for every instance.
type Literal string

func (l Literal) resolve(Entity) (string, bool) { return string(l), true }
func (Literal) literal() bool                    { return true }

// FieldRef names a field of the local instance, read when the attribute is resolved.
type FieldRef string

func (f FieldRef) resolve(e Entity) (string, bool) {
	if e == nil {
		return "", false
	}
	return e.Get(string(f))
}

func (FieldRef) literal() bool { return false }

// AttributeRule maps a namespaced remote attribute name to a value source.
type AttributeRule struct {
	Name  string // always carries CustomAttributePrefix
	Value RuleValue
}

// IsLiteral reports whether the rule's value does not come from the local instance.
func (r AttributeRule) IsLiteral() bool {
	return r.Value == nil || r.Value.literal()
}

// FieldName is the local field matching the rule's remote name.
func (r AttributeRule) FieldName() string {
	return strings.TrimPrefix(r.Name, CustomAttributePrefix)
}

// Declaration describes how a local type is linked to the directory.
// It is built once when the type is registered and is read-only afterwards.
type Declaration struct {
	Name            string
	ExternalIDField string
	VerifyEmail     bool
	VerifyPhone     bool

	rules []AttributeRule
}

// DeclarationOption configures a Declaration.
type DeclarationOption func(*Declaration)

// WithExternalIDField overrides DefaultExternalIDField.
func WithExternalIDField(field string) DeclarationOption {
	return func(d *Declaration) { d.ExternalIDField = field }
}

// VerifyEmail asks the directory to mark the email pre-verified on creation.
func VerifyEmail() DeclarationOption {
	return func(d *Declaration) { d.VerifyEmail = true }
}

// VerifyPhone asks the directory to mark the phone number pre-verified on creation.
func VerifyPhone() DeclarationOption {
	return func(d *Declaration) { d.VerifyPhone = true }
}

// WithAttribute declares a custom attribute rule.
func WithAttribute(name string, value RuleValue) DeclarationOption {
	return func(d *Declaration) { d.DefineAttribute(name, value) }
}

// NewDeclaration builds the declaration of a local type.
func NewDeclaration(name string, opts ...DeclarationOption) *Declaration {
	d := &Declaration{
		Name:            name,
		ExternalIDField: DefaultExternalIDField,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefineAttribute appends a custom attribute rule, namespacing its name.
func (d *Declaration) DefineAttribute(name string, value RuleValue) {
	if !strings.HasPrefix(name, CustomAttributePrefix) {
		name = CustomAttributePrefix + name
	}
	d.rules = append(d.rules, AttributeRule{Name: name, Value: value})
}

// Rules returns the declared custom attribute rules in declaration order.
func (d *Declaration) Rules() []AttributeRule {
	if d == nil {
		return nil
	}
	out := make([]AttributeRule, len(d.rules))
	copy(out, d.rules)
	return out
}

// ResolveAttributes evaluates every rule against e. Field references to a
// field the local type does not have are omitted.
func (d *Declaration) ResolveAttributes(e Entity) []Attribute {
	if d == nil {
		return nil
	}
	attrs := make([]Attribute, 0, len(d.rules))
	for _, r := range d.rules {
		if r.Value == nil {
			continue
		}
		v, ok := r.Value.resolve(e)
		if !ok {
			continue
		}
		attrs = append(attrs, Attribute{Name: r.Name, Value: v})
	}
	return attrs
}
