// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package entity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// UserOrRole is a grantee. Exactly one of User and Role is set.
type UserOrRole struct {
	User UserID
	Role RoleID
}

// ForUser wraps a user id.
func ForUser(u UserID) UserOrRole { return UserOrRole{User: u} }

// ForRole wraps a role id.
func ForRole(r RoleID) UserOrRole { return UserOrRole{Role: r} }

// IsRole reports whether the grantee is a role.
func (s UserOrRole) IsRole() bool { return s.Role.UUID != uuid.Nil }

// IsZero reports whether neither variant is set.
func (s UserOrRole) IsZero() bool { return s.User == "" && !s.IsRole() }

// Subject renders the tuple user string: user:<id> or role:<uuid>#assignee.
func (s UserOrRole) Subject() string {
	if s.IsRole() {
		return s.Role.Object() + "#" + RelAssignee
	}
	return s.User.Object()
}

func (s UserOrRole) String() string {
	if s.IsRole() {
		return "role:" + s.Role.String()
	}
	return "user:" + string(s.User)
}

type userOrRoleJSON struct {
	User *string `json:"user,omitempty"`
	Role *string `json:"role,omitempty"`
}

func (s UserOrRole) MarshalJSON() ([]byte, error) {
	var out userOrRoleJSON
	if s.IsRole() {
		r := s.Role.String()
		out.Role = &r
	} else {
		u := string(s.User)
		out.User = &u
	}
	return json.Marshal(out)
}

func (s *UserOrRole) UnmarshalJSON(b []byte) error {
	var in userOrRoleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	return s.fromParts(in.User, in.Role)
}

func (s *UserOrRole) fromParts(user, role *string) error {
	switch {
	case user != nil && role != nil:
		return fmt.Errorf("%w: both user and role set", ErrInvalidID)
	case user != nil:
		u, err := ParseUserID(*user)
		if err != nil {
			return err
		}
		*s = ForUser(u)
	case role != nil:
		r, err := ParseRoleID(*role)
		if err != nil {
			return err
		}
		*s = ForRole(r)
	default:
		return fmt.Errorf("%w: expected user or role", ErrInvalidID)
	}
	return nil
}

// ParseUserOrRole reverses Subject. Role subjects must carry #assignee.
func ParseUserOrRole(subject string) (UserOrRole, error) {
	ref, err := ParseObject(subject)
	if err != nil {
		return UserOrRole{}, err
	}
	switch ref.Type {
	case TypeUser:
		raw, err := url.QueryUnescape(ref.ID)
		if err != nil {
			return UserOrRole{}, fmt.Errorf("%w: user %q: %v", ErrInvalidID, ref.ID, err)
		}
		u, err := ParseUserID(raw)
		return ForUser(u), err
	case TypeRole:
		id, rel, ok := strings.Cut(ref.ID, "#")
		if !ok || rel != RelAssignee {
			return UserOrRole{}, fmt.Errorf("%w: role subject %q must be #%s", ErrInvalidID, subject, RelAssignee)
		}
		r, err := ParseRoleID(id)
		return ForRole(r), err
	}
	return UserOrRole{}, fmt.Errorf("%w: subject type %q", ErrInvalidID, ref.Type)
}

// ActorKind distinguishes the three caller shapes.
type ActorKind int

const (
	ActorAnonymous ActorKind = iota
	ActorPrincipal
	ActorRole
)

// Actor is the authenticated caller of a request.
type Actor struct {
	Kind        ActorKind
	Principal   UserID
	AssumedRole RoleID
}

// Anonymous returns the unauthenticated actor.
func Anonymous() Actor { return Actor{Kind: ActorAnonymous} }

// Principal returns an actor acting as itself.
func Principal(u UserID) Actor { return Actor{Kind: ActorPrincipal, Principal: u} }

// AssumingRole returns an actor acting through a role it has assumed.
func AssumingRole(u UserID, r RoleID) Actor {
	return Actor{Kind: ActorRole, Principal: u, AssumedRole: r}
}

func (a Actor) IsAnonymous() bool { return a.Kind == ActorAnonymous }

// Subject is the tuple user string used when checking on behalf of the actor.
// Anonymous actors check as the public wildcard.
func (a Actor) Subject() string {
	switch a.Kind {
	case ActorPrincipal:
		return a.Principal.Object()
	case ActorRole:
		return ForRole(a.AssumedRole).Subject()
	}
	return string(TypeUser) + ":*"
}

// AsUserOrRole returns the grantee the actor acts as.
func (a Actor) AsUserOrRole() (UserOrRole, bool) {
	switch a.Kind {
	case ActorPrincipal:
		return ForUser(a.Principal), true
	case ActorRole:
		return ForRole(a.AssumedRole), true
	}
	return UserOrRole{}, false
}

func (a Actor) String() string {
	switch a.Kind {
	case ActorPrincipal:
		return "principal:" + string(a.Principal)
	case ActorRole:
		return "principal:" + string(a.Principal) + "/role:" + a.AssumedRole.String()
	}
	return "anonymous"
}

// RequestMetadata travels with every authorization call.
type RequestMetadata struct {
	Actor            Actor
	PreferredProject *ProjectID
	RequestID        string
}

// Assignment is one direct grant on an object.
type Assignment struct {
	Relation string
	Subject  UserOrRole
}

type assignmentJSON struct {
	Type string  `json:"type"`
	User *string `json:"user,omitempty"`
	Role *string `json:"role,omitempty"`
}

func (a Assignment) MarshalJSON() ([]byte, error) {
	out := assignmentJSON{Type: a.Relation}
	if a.Subject.IsRole() {
		r := a.Subject.Role.String()
		out.Role = &r
	} else {
		u := string(a.Subject.User)
		out.User = &u
	}
	return json.Marshal(out)
}

func (a *Assignment) UnmarshalJSON(b []byte) error {
	var in assignmentJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.Type == "" {
		return fmt.Errorf("%w: assignment without type", ErrInvalidID)
	}
	a.Relation = in.Type
	return a.Subject.fromParts(in.User, in.Role)
}

// AssignmentFromTuple converts a stored tuple's relation and user back into an
// assignment. Structural tuples such as parent edges fail to parse.
func AssignmentFromTuple(relation, user string) (Assignment, error) {
	subj, err := ParseUserOrRole(user)
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{Relation: relation, Subject: subj}, nil
}
