// Package registry holds the catalog of event types the core accepts: the
// payload shape of each type, the roles allowed to emit it and whether it
// drives task creation. A Registry is built once and is read-only afterwards.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"dealtrail/internal/domain"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the serialised form of a registry.
type Catalog struct {
	Version     string       `yaml:"version"`
	Definitions []Definition `yaml:"definitions"`
}

// Definition describes one event type.
type Definition struct {
	Type         domain.EventType `yaml:"type"`
	Version      string           `yaml:"version"`
	Description  string           `yaml:"description,omitempty"`
	Fields       []Field          `yaml:"fields"`
	AllowedRoles []domain.Role    `yaml:"allowed_roles"`
	SystemOnly   bool             `yaml:"system_only,omitempty"`
	CreatesTasks bool             `yaml:"creates_tasks,omitempty"`

	schema *jsonschema.Schema
}

// Allows reports whether role may emit events of this type.
func (d *Definition) Allows(role domain.Role) bool {
	return domain.HasRole(d.AllowedRoles, role)
}

// Schema is the compiled payload schema.
func (d *Definition) Schema() *jsonschema.Schema {
	return d.schema
}

// Field returns the named payload field.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type Registry struct {
	version *semver.Version
	defs    map[domain.EventType]*Definition
	order   []domain.EventType
}

// New validates and compiles a catalog.
func New(catalog Catalog) (*Registry, error) {
	version, err := semver.NewVersion(catalog.Version)
	if err != nil {
		return nil, fmt.Errorf("catalog version %q: %w", catalog.Version, err)
	}
	r := &Registry{
		version: version,
		defs:    make(map[domain.EventType]*Definition, len(catalog.Definitions)),
		order:   make([]domain.EventType, 0, len(catalog.Definitions)),
	}
	for i := range catalog.Definitions {
		def := catalog.Definitions[i]
		if err := checkDefinition(&def); err != nil {
			return nil, err
		}
		if _, dup := r.defs[def.Type]; dup {
			return nil, fmt.Errorf("event type %s defined twice", def.Type)
		}
		def.schema, err = compileSchema(&def)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", def.Type, err)
		}
		r.defs[def.Type] = &def
		r.order = append(r.order, def.Type)
	}
	return r, nil
}

// Parse builds a registry from a YAML catalog.
func Parse(data []byte) (*Registry, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal: %w", err)
	}
	return New(catalog)
}

// LoadFile builds a registry from a YAML catalog on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() (*Registry, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("registry: built-in catalog: %v", err))
	}
	return r
}

func (r *Registry) Lookup(t domain.EventType) (*Definition, bool) {
	def, ok := r.defs[t]
	return def, ok
}

// Types lists the registered types in catalog order.
func (r *Registry) Types() []domain.EventType {
	res := make([]domain.EventType, len(r.order))
	copy(res, r.order)
	return res
}

// TaskCreatingTypes lists the types flagged creates_tasks, sorted.
func (r *Registry) TaskCreatingTypes() []domain.EventType {
	var res []domain.EventType
	for _, t := range r.order {
		if r.defs[t].CreatesTasks {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (r *Registry) Version() *semver.Version {
	return r.version
}

// RequireVersion checks the catalog version against a semver constraint
// such as ">= 1.2".
func (r *Registry) RequireVersion(constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("catalog constraint %q: %w", constraint, err)
	}
	if ok, errs := c.Validate(r.version); !ok {
		return fmt.Errorf("catalog version %s does not satisfy %q: %v", r.version, constraint, errs)
	}
	return nil
}

func checkDefinition(def *Definition) error {
	if def.Type == "" {
		return fmt.Errorf("definition without type")
	}
	if def.Version == "" {
		def.Version = "1.0.0"
	}
	if _, err := semver.NewVersion(def.Version); err != nil {
		return fmt.Errorf("%s version %q: %w", def.Type, def.Version, err)
	}
	if len(def.AllowedRoles) == 0 {
		return fmt.Errorf("%s: no allowed roles", def.Type)
	}
	if def.SystemOnly {
		for _, role := range def.AllowedRoles {
			if role != domain.RoleSystem {
				return fmt.Errorf("%s: system_only type allows role %s", def.Type, role)
			}
		}
	}
	seen := make(map[string]struct{}, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field without name", def.Type)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%s: field %s declared twice", def.Type, f.Name)
		}
		seen[f.Name] = struct{}{}
		if _, ok := kindSchemas[f.Kind]; !ok {
			return fmt.Errorf("%s.%s: unknown kind %q", def.Type, f.Name, f.Kind)
		}
		if f.Required && f.Default != nil {
			return fmt.Errorf("%s.%s: required field cannot carry a default", def.Type, f.Name)
		}
		if f.Positive && f.Kind != KindNumber && f.Kind != KindInteger {
			return fmt.Errorf("%s.%s: positive applies to numeric fields only", def.Type, f.Name)
		}
	}
	return nil
}
