// Package schema declares the dumpable entity types and turns them into the
// ordered field descriptors that drive both the SQL column list and the
// binary row layout.
package schema

import (
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/fullstorydev/quicksync/errs"
)

const DefaultNamespace = "quicksync"

// Field is one entity attribute. Name doubles as the SQL column name.
type Field struct {
	Name string
	Kind Kind
}

// Entity is a declared row shape. Extends names a parent entity whose fields
// come first in the descriptor; a bare parent name is looked up in the
// entity's own namespace before any other.
type Entity struct {
	Namespace string
	Name      string
	Extends   string
	Fields    []Field
}

// QualifiedName is the registry key of e, "<namespace>.<name>".
func (e Entity) QualifiedName() string {
	return e.Namespace + "." + e.Name
}

// Declarer is implemented by Go types that describe their own table.
type Declarer interface {
	Entity() Entity
}

// Descriptor is the resolved, immutable layout of one entity type.
type Descriptor struct {
	Name   string
	Table  string
	Fields []Field
}

// Columns is the comma separated column list in field order.
func (d *Descriptor) Columns() string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

// Registry is the explicit set of entity types known to a dump run, keyed by
// qualified name.
type Registry struct {
	entities map[string]Entity
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Entity)}
}

// Register adds e. Registering an identical entity twice is a no-op; a
// different declaration under an existing qualified name is rejected.
func (r *Registry) Register(e Entity) error {
	if e.Name == "" {
		return errs.Ef(errs.ClassResolution, "", "entity has no name")
	}
	if strings.Contains(e.Name, ".") {
		return errs.Ef(errs.ClassResolution, e.Name, "entity name must not contain '.'")
	}
	if e.Namespace == "" {
		e.Namespace = DefaultNamespace
	}
	key := e.QualifiedName()
	if prev, ok := r.entities[key]; ok {
		if reflect.DeepEqual(prev, e) {
			return nil
		}
		return errs.Ef(errs.ClassResolution, key, "entity declared twice with different layouts")
	}
	r.entities[key] = e
	return nil
}

// RegisterAll registers the entity of every declarer in order.
func (r *Registry) RegisterAll(ds ...Declarer) error {
	for _, d := range ds {
		if err := r.Register(d.Entity()); err != nil {
			return err
		}
	}
	return nil
}

// Names lists the entity names declared under namespace, sorted.
func (r *Registry) Names(namespace string) []string {
	var names []string
	for _, e := range r.entities {
		if e.Namespace == namespace {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve returns the entity declared under name. A qualified name
// ("<namespace>.<name>") is looked up directly; a bare name must be declared
// in exactly one namespace.
func (r *Registry) Resolve(name string) (Entity, error) {
	return r.resolve(name, "")
}

func (r *Registry) resolve(name, near string) (Entity, error) {
	if strings.Contains(name, ".") {
		e, ok := r.entities[name]
		if !ok {
			return Entity{}, errs.Ef(errs.ClassResolution, name, "entity not declared")
		}
		return e, nil
	}
	if near != "" {
		if e, ok := r.entities[near+"."+name]; ok {
			return e, nil
		}
	}
	var found []Entity
	for _, e := range r.entities {
		if e.Name == name {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return Entity{}, errs.Ef(errs.ClassResolution, name, "entity not declared")
	case 1:
		return found[0], nil
	}
	spaces := make([]string, len(found))
	for i, e := range found {
		spaces[i] = e.Namespace
	}
	sort.Strings(spaces)
	return Entity{}, errs.Ef(errs.ClassResolution, name, "entity declared in several namespaces %v, qualify it", spaces)
}

// lineage returns name and its ancestors, root-most first.
func (r *Registry) lineage(name string) ([]Entity, error) {
	var chain []Entity
	seen := make(map[string]bool)
	cur, near := name, ""
	for cur != "" {
		e, err := r.resolve(cur, near)
		if err != nil {
			return nil, err
		}
		key := e.QualifiedName()
		if seen[key] {
			return nil, errs.Ef(errs.ClassResolution, name, "cyclic extends chain through %q", key)
		}
		seen[key] = true
		chain = append(chain, e)
		cur, near = e.Extends, e.Namespace
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Describe builds the descriptor for name: inherited fields first, then the
// entity's own, each in declaration order. name may be bare or qualified.
func (r *Registry) Describe(name string) (*Descriptor, error) {
	chain, err := r.lineage(name)
	if err != nil {
		return nil, err
	}
	leaf := chain[len(chain)-1]
	if !identRE.MatchString(leaf.Name) {
		return nil, errs.Ef(errs.Introspection, name, "entity name is not a usable table name")
	}

	desc := &Descriptor{Name: leaf.Name, Table: strings.ToLower(leaf.Name)}
	seen := make(map[string]string)
	for _, e := range chain {
		for _, f := range e.Fields {
			if !identRE.MatchString(f.Name) {
				return nil, errs.Ef(errs.Introspection, name, "field %q of %s is not a usable column name", f.Name, e.Name)
			}
			if owner, dup := seen[f.Name]; dup {
				return nil, errs.Ef(errs.Introspection, name, "field %q declared on both %s and %s", f.Name, owner, e.Name)
			}
			if !f.Kind.Valid() {
				return nil, errs.Ef(errs.Introspection, name, "field %q has no kind", f.Name)
			}
			seen[f.Name] = e.Name
			desc.Fields = append(desc.Fields, f)
		}
	}
	if len(desc.Fields) == 0 {
		return nil, errs.Ef(errs.Introspection, name, "entity has no fields")
	}
	return desc, nil
}
