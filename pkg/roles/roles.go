package roles

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/digitalis-io/ktopology/pkg/loader"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// ACL is one access template of a custom role. ResourceName may carry
// {{ field }} placeholders filled from the object bound to the role.
type ACL struct {
	ResourceType   string `json:"resourceType"`
	ResourceName   string `json:"resourceName"`
	PatternType    string `json:"patternType"`
	Host           string `json:"host"`
	Operation      string `json:"operation"`
	PermissionType string `json:"permissionType"`
	// Role is the role name granted when role-based access control is in use.
	Role string `json:"role"`
}

// Role is a named list of ACL templates.
type Role struct {
	Name string `json:"name"`
	ACLs []ACL  `json:"acls"`
}

type document struct {
	Roles []Role `json:"roles"`
}

// Roles is a set of custom roles keyed by name, keeping declaration order.
type Roles struct {
	byName map[string]Role
	order  []string
}

// New returns an empty role set.
func New() *Roles {
	return &Roles{byName: map[string]Role{}}
}

// LoadFiles reads and merges role documents in the given order.
func LoadFiles(paths ...string) (*Roles, error) {
	out := New()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &loader.ParsingError{File: path, Err: err}
		}
		r, err := Parse(path, data)
		if err != nil {
			return nil, err
		}
		out.Merge(r)
	}
	return out, nil
}

// Parse decodes one role document and fills the template defaults.
func Parse(file string, data []byte) (*Roles, error) {
	var doc document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, &loader.ParsingError{File: file, Err: err}
	}
	out := New()
	for i, role := range doc.Roles {
		if role.Name == "" {
			return nil, &loader.ParsingError{File: file, Err: fmt.Errorf("role #%d has no name", i+1)}
		}
		for j := range role.ACLs {
			acl := &role.ACLs[j]
			if acl.ResourceType == "" || acl.ResourceName == "" {
				return nil, &loader.ParsingError{
					File: file,
					Err:  fmt.Errorf("role %s: acl #%d needs a resourceType and a resourceName", role.Name, j+1),
				}
			}
			if acl.Operation == "" && acl.Role == "" {
				return nil, &loader.ParsingError{
					File: file,
					Err:  fmt.Errorf("role %s: acl #%d needs an operation or a role", role.Name, j+1),
				}
			}
			acl.setDefaults()
			if err := acl.validate(); err != nil {
				return nil, &loader.ParsingError{
					File: file,
					Err:  fmt.Errorf("role %s: acl #%d: %w", role.Name, j+1, err),
				}
			}
		}
		out.put(role)
	}
	return out, nil
}

func (a *ACL) setDefaults() {
	if a.PermissionType == "" {
		a.PermissionType = model.PermissionAllow
	}
	if a.Host == "" {
		a.Host = model.AnyHost
	}
	if a.PatternType == "" {
		a.PatternType = model.PatternLiteral
	}
	a.PermissionType = strings.ToUpper(a.PermissionType)
	a.PatternType = strings.ToUpper(a.PatternType)
	a.Operation = strings.ToUpper(a.Operation)
	if t, ok := model.CanonicalResourceType(a.ResourceType); ok {
		a.ResourceType = t
	}
}

func (a *ACL) validate() error {
	if _, ok := model.CanonicalResourceType(a.ResourceType); !ok {
		return fmt.Errorf("unknown resource type %q", a.ResourceType)
	}
	if a.PatternType != model.PatternLiteral && a.PatternType != model.PatternPrefixed {
		return fmt.Errorf("unknown pattern type %q", a.PatternType)
	}
	if a.PermissionType != model.PermissionAllow && a.PermissionType != model.PermissionDeny {
		return fmt.Errorf("unknown permission type %q", a.PermissionType)
	}
	if a.Operation != "" && !model.IsACLOperation(a.Operation) {
		return fmt.Errorf("unknown operation %q", a.Operation)
	}
	return nil
}

// CheckACL reports why acl cannot be enforced as a Kafka ACL.
func CheckACL(acl ACL) error {
	if acl.Operation == "" {
		return fmt.Errorf("%s:%s grants role %s but has no ACL operation", acl.ResourceType, acl.ResourceName, acl.Role)
	}
	if !model.IsACLResourceType(acl.ResourceType) {
		return fmt.Errorf("resource type %s cannot be expressed as a Kafka ACL", acl.ResourceType)
	}
	return nil
}

func (r *Roles) put(role Role) {
	if _, ok := r.byName[role.Name]; !ok {
		r.order = append(r.order, role.Name)
	}
	r.byName[role.Name] = role
}

// Merge adds the roles of other. A role already present is replaced by the
// definition in other; every other role is kept.
func (r *Roles) Merge(other *Roles) {
	if other == nil {
		return
	}
	for _, name := range other.order {
		r.put(other.byName[name])
	}
}

// Get returns the role called name.
func (r *Roles) Get(name string) (Role, bool) {
	if r == nil {
		return Role{}, false
	}
	role, ok := r.byName[name]
	return role, ok
}

// Names returns the role names in declaration order.
func (r *Roles) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

func (r *Roles) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byName)
}

// ValidationError lists the custom roles a topology uses without a
// definition.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("topology references undefined custom roles: %s", strings.Join(e.Missing, ", "))
}

// ValidateTopology checks that every custom role used by a project of t is
// defined.
func (r *Roles) ValidateTopology(t *model.Topology) error {
	var missing []string
	for _, project := range t.Projects {
		for name := range project.Others {
			if _, ok := r.Get(name); !ok {
				missing = append(missing, project.Name+"/"+name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ValidationError{Missing: missing}
}

// UnresolvedPlaceholderError reports a placeholder with no value in the
// object bound to a role. It matches loader.ConflictError and
// loader.ParsingError with errors.As.
type UnresolvedPlaceholderError struct {
	Template    string
	Placeholder string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder %q in %q", e.Placeholder, e.Template)
}

func (e *UnresolvedPlaceholderError) As(target any) bool {
	switch t := target.(type) {
	case **loader.ConflictError:
		*t = &loader.ConflictError{Reason: e.Error()}
		return true
	case **loader.ParsingError:
		*t = &loader.ParsingError{Err: e}
		return true
	}
	return false
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Resolve fills the resource name placeholders of acl from values.
func Resolve(acl ACL, values model.Other) (ACL, error) {
	var missing string
	template := acl.ResourceName
	acl.ResourceName = placeholder.ReplaceAllStringFunc(acl.ResourceName, func(m string) string {
		field := placeholder.FindStringSubmatch(m)[1]
		v, ok := values[field]
		if !ok && missing == "" {
			missing = field
		}
		return v
	})
	if missing != "" {
		return ACL{}, &UnresolvedPlaceholderError{Template: template, Placeholder: missing}
	}
	return acl, nil
}

// ResolveRole resolves every template of role against values.
func ResolveRole(role Role, values model.Other) ([]ACL, error) {
	out := make([]ACL, 0, len(role.ACLs))
	for _, acl := range role.ACLs {
		resolved, err := Resolve(acl, values)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", role.Name, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}
