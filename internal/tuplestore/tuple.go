// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package tuplestore stores relationship tuples and answers permission checks
// over them.
//
// A tuple object#relation@user states that user holds relation on object.
// Users are either concrete subjects (user:alice), public wildcards (user:*),
// or usersets (role:r1#assignee). The Backend interface is the raw store; the
// Client adds chunking, ordered batch assembly, pagination, retries on
// concurrent updates, a circuit breaker and a request rate limit.
package tuplestore

import (
	"context"
	"fmt"
	"strings"
)

// TupleKey is one relationship edge.
type TupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func (k TupleKey) String() string {
	return k.Object + "#" + k.Relation + "@" + k.User
}

// ReadKey filters a Read. Object may be a full object ("namespace:<id>") or
// a bare type ("namespace:"), in which case User must be set. Empty fields
// match everything.
type ReadKey struct {
	Object   string
	Relation string
	User     string
}

// ReadPage is one page of Read results in key order.
type ReadPage struct {
	Tuples []TupleKey
	// Continuation is empty on the last page.
	Continuation string
}

// CheckItem is a check tagged with a caller-chosen correlation id.
type CheckItem struct {
	Tuple         TupleKey
	CorrelationID string
}

// Backend is the contract a tuple store must fulfil. Implementations must
// give read-after-write consistency: a Check issued after Write returns
// observes the write.
type Backend interface {
	Check(ctx context.Context, tuple TupleKey) (bool, error)
	// BatchCheck returns a decision per correlation id.
	BatchCheck(ctx context.Context, items []CheckItem) (map[string]bool, error)
	Read(ctx context.Context, key ReadKey, pageSize int, continuation string) (ReadPage, error)
	// Write applies all writes and deletes atomically.
	Write(ctx context.Context, writes, deletes []TupleKey) error
}

// subject is a parsed tuple user.
type subject struct {
	Type     string
	ID       string
	Relation string
}

func (s subject) wildcard() bool { return s.ID == "*" }

func (s subject) object() string { return s.Type + ":" + s.ID }

func parseSubject(user string) (subject, error) {
	obj, rel, _ := strings.Cut(user, "#")
	t, id, ok := strings.Cut(obj, ":")
	if !ok || t == "" || id == "" {
		return subject{}, fmt.Errorf("%w: user %q", ErrInvalidTuple, user)
	}
	if id == "*" && rel != "" {
		return subject{}, fmt.Errorf("%w: wildcard user %q cannot carry a relation", ErrInvalidTuple, user)
	}
	return subject{Type: t, ID: id, Relation: rel}, nil
}

func splitObject(object string) (typ, id string, err error) {
	t, id, ok := strings.Cut(object, ":")
	if !ok || t == "" {
		return "", "", fmt.Errorf("%w: object %q", ErrInvalidTuple, object)
	}
	return t, id, nil
}
