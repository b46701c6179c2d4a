// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package schema describes a Zanzibar-style authorization model: object types,
// their relations, and the rewrite rules that compute a relation from direct
// tuples, other relations on the same object, or relations on related objects.
//
// A relation is the union of its usersets. A userset is exactly one of:
//
//   - direct membership with a list of allowed subject types
//   - a computed relation on the same object
//   - a tuple-to-userset arrow ("viewer from parent")
//   - an intersection of usersets
//   - an exclusion ("base but not subtract")
//
// The package is pure data. Evaluation lives in the tuple store.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

// TypeName identifies an object type such as "namespace" or "user".
type TypeName string

// RelationName identifies a relation on an object type.
type RelationName string

// ErrInvalidSchema is returned by Validate for dangling references.
var ErrInvalidSchema = errors.New("invalid authorization schema")

// Schema maps type names to their definitions.
type Schema struct {
	Types map[TypeName]*ObjectType
}

// ObjectType is one type in the graph.
type ObjectType struct {
	Name      TypeName
	Relations map[RelationName]*Relation
}

// Relation is a named relation. It is satisfied if any userset is.
type Relation struct {
	Name     RelationName
	Usersets []Userset
}

// SubjectRef is an allowed subject for direct membership.
type SubjectRef struct {
	Type TypeName
	// Relation is set for userset subjects such as role#assignee.
	Relation RelationName
	// Wildcard allows the public subject type:*.
	Wildcard bool
}

// Userset is one way of satisfying a relation. Exactly one field is set.
type Userset struct {
	This             []SubjectRef
	ComputedRelation RelationName
	TupleToUserset   *TupleToUserset
	Intersection     []Userset
	Exclusion        *Exclusion
}

// TupleToUserset follows TuplesetRelation to target objects and checks
// ComputedUsersetRelation there.
type TupleToUserset struct {
	TuplesetRelation        RelationName
	ComputedUsersetRelation RelationName
}

// Exclusion is satisfied when Base holds and Subtract does not.
type Exclusion struct {
	Base     Userset
	Subtract Userset
}

// Ref allows direct subjects of the given type (user:alice).
func Ref(t TypeName) SubjectRef {
	return SubjectRef{Type: t}
}

// RefWithRelation allows userset subjects (role:r1#assignee).
func RefWithRelation(t TypeName, rel RelationName) SubjectRef {
	return SubjectRef{Type: t, Relation: rel}
}

// Wildcard allows the public subject t:*.
func Wildcard(t TypeName) SubjectRef {
	return SubjectRef{Type: t, Wildcard: true}
}

// Direct builds a userset for direct tuple membership.
func Direct(types ...SubjectRef) Userset {
	return Userset{This: types}
}

// Computed references another relation on the same object.
func Computed(rel RelationName) Userset {
	return Userset{ComputedRelation: rel}
}

// Arrow follows through and checks rel on the targets.
func Arrow(through, rel RelationName) Userset {
	return Userset{TupleToUserset: &TupleToUserset{
		TuplesetRelation:        through,
		ComputedUsersetRelation: rel,
	}}
}

// And is satisfied only if every userset is.
func And(sets ...Userset) Userset {
	return Userset{Intersection: sets}
}

// ButNot is satisfied when base holds and subtract does not.
func ButNot(base, subtract Userset) Userset {
	return Userset{Exclusion: &Exclusion{Base: base, Subtract: subtract}}
}

// NewType builds an object type from relations.
func NewType(name TypeName, relations ...*Relation) *ObjectType {
	ot := &ObjectType{Name: name, Relations: make(map[RelationName]*Relation, len(relations))}
	for _, r := range relations {
		ot.Relations[r.Name] = r
	}
	return ot
}

// Define builds a relation as the union of usersets.
func Define(name RelationName, usersets ...Userset) *Relation {
	return &Relation{Name: name, Usersets: usersets}
}

// New builds a schema from types.
func New(types ...*ObjectType) *Schema {
	s := &Schema{Types: make(map[TypeName]*ObjectType, len(types))}
	for _, t := range types {
		s.Types[t.Name] = t
	}
	return s
}

// Relation looks up a relation definition.
func (s *Schema) Relation(t TypeName, rel RelationName) (*Relation, bool) {
	ot, ok := s.Types[t]
	if !ok {
		return nil, false
	}
	r, ok := ot.Relations[rel]
	return r, ok
}

// DirectTargetTypes returns the subject refs allowed for direct membership,
// or nil if the relation cannot be written.
func (r *Relation) DirectTargetTypes() []SubjectRef {
	var refs []SubjectRef
	for _, us := range r.Usersets {
		refs = append(refs, us.This...)
	}
	return refs
}

// AllowsSubject reports whether a tuple object#relation@subject may be written.
func (s *Schema) AllowsSubject(objectType TypeName, rel RelationName, subjectType TypeName, subjectRel RelationName, wildcard bool) bool {
	r, ok := s.Relation(objectType, rel)
	if !ok {
		return false
	}
	for _, ref := range r.DirectTargetTypes() {
		if ref.Type != subjectType || ref.Wildcard != wildcard {
			continue
		}
		if wildcard || ref.Relation == subjectRel {
			return true
		}
	}
	return false
}

// RelationNames returns the sorted relation names of a type.
func (s *Schema) RelationNames(t TypeName) []RelationName {
	ot, ok := s.Types[t]
	if !ok {
		return nil
	}
	names := make([]RelationName, 0, len(ot.Relations))
	for n := range ot.Relations {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Validate checks that every computed relation, arrow and subject reference
// points at something defined.
func (s *Schema) Validate() error {
	for tn, ot := range s.Types {
		for rn, r := range ot.Relations {
			for _, us := range r.Usersets {
				if err := s.validateUserset(tn, us); err != nil {
					return fmt.Errorf("%w: %s#%s: %v", ErrInvalidSchema, tn, rn, err)
				}
			}
		}
	}
	return nil
}

func (s *Schema) validateUserset(t TypeName, us Userset) error {
	ot := s.Types[t]
	switch {
	case len(us.This) > 0:
		for _, ref := range us.This {
			if _, ok := s.Types[ref.Type]; !ok {
				return fmt.Errorf("unknown subject type %q", ref.Type)
			}
			if ref.Relation != "" {
				if _, ok := s.Relation(ref.Type, ref.Relation); !ok {
					return fmt.Errorf("unknown subject relation %s#%s", ref.Type, ref.Relation)
				}
			}
		}
	case us.ComputedRelation != "":
		if _, ok := ot.Relations[us.ComputedRelation]; !ok {
			return fmt.Errorf("unknown computed relation %q", us.ComputedRelation)
		}
	case us.TupleToUserset != nil:
		ts, ok := ot.Relations[us.TupleToUserset.TuplesetRelation]
		if !ok {
			return fmt.Errorf("unknown tupleset relation %q", us.TupleToUserset.TuplesetRelation)
		}
		found := false
		for _, ref := range ts.DirectTargetTypes() {
			if _, ok := s.Relation(ref.Type, us.TupleToUserset.ComputedUsersetRelation); ok {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("no target of %q defines %q",
				us.TupleToUserset.TuplesetRelation, us.TupleToUserset.ComputedUsersetRelation)
		}
	case len(us.Intersection) > 0:
		for _, child := range us.Intersection {
			if err := s.validateUserset(t, child); err != nil {
				return err
			}
		}
	case us.Exclusion != nil:
		if err := s.validateUserset(t, us.Exclusion.Base); err != nil {
			return err
		}
		return s.validateUserset(t, us.Exclusion.Subtract)
	default:
		return errors.New("empty userset")
	}
	return nil
}
