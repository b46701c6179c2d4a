// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

// Outcome is the tri-state result of a point check.
type Outcome int

const (
	Allowed Outcome = iota
	Denied
	CannotSee
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case CannotSee:
		return "cannot_see"
	}
	return "unknown"
}

// Decision is the result of RequireAction.
type Decision struct {
	Outcome  Outcome
	Object   string
	Relation string
}

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool { return d.Outcome == Allowed }

// Err converts a negative decision into its error. Allowed yields nil.
func (d Decision) Err() error {
	switch d.Outcome {
	case Allowed:
		return nil
	case CannotSee:
		return &CannotSeeError{Object: d.Object}
	}
	return &UnauthorizedError{Relation: d.Relation, Object: d.Object}
}
