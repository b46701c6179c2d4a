// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package tuplestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/timoguin/lakekeeper-sub000/internal/schema"
)

// Key prefixes for BadgerDB storage
const (
	forwardPrefix = "t/" // t/<object>#<relation>@<user>
	reversePrefix = "u/" // u/<user>|<object>#<relation>
)

// DefaultMaxDepth bounds the number of arrow and userset hops per check.
const DefaultMaxDepth = 32

// GraphOptions configures an embedded graph backend.
type GraphOptions struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	MaxDepth int
}

// GraphBackend evaluates a schema over tuples persisted in BadgerDB.
// All reads of one check run inside a single badger read transaction, so a
// check sees a consistent snapshot.
type GraphBackend struct {
	db       *badger.DB
	model    *schema.Schema
	maxDepth int
	ownsDB   bool
}

// OpenGraph opens (or creates) a badger database and wraps it.
func OpenGraph(model *schema.Schema, opts GraphOptions) (*GraphBackend, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("tuple store path is required unless in-memory")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open tuple store: %w", err)
	}
	g := NewGraphBackend(db, model, opts.MaxDepth)
	g.ownsDB = true
	return g, nil
}

// NewGraphBackend wraps an already open database. The caller keeps ownership.
func NewGraphBackend(db *badger.DB, model *schema.Schema, maxDepth int) *GraphBackend {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &GraphBackend{db: db, model: model, maxDepth: maxDepth}
}

// Close releases the database if OpenGraph created it.
func (g *GraphBackend) Close() error {
	if !g.ownsDB {
		return nil
	}
	return g.db.Close()
}

// Ping reports whether the database is open.
func (g *GraphBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.db.IsClosed() {
		return &BackendError{Op: "ping", Err: errors.New("database closed")}
	}
	return nil
}

func forwardKey(t TupleKey) []byte {
	return []byte(forwardPrefix + t.Object + "#" + t.Relation + "@" + t.User)
}

func reverseKey(t TupleKey) []byte {
	return []byte(reversePrefix + t.User + "|" + t.Object + "#" + t.Relation)
}

// Check implements Backend.
func (g *GraphBackend) Check(ctx context.Context, tuple TupleKey) (bool, error) {
	var allowed bool
	err := g.db.View(func(txn *badger.Txn) error {
		var err error
		allowed, err = g.evaluate(ctx, txn, tuple)
		return err
	})
	if err != nil {
		return false, backendErr("check", err)
	}
	return allowed, nil
}

// BatchCheck implements Backend.
func (g *GraphBackend) BatchCheck(ctx context.Context, items []CheckItem) (map[string]bool, error) {
	out := make(map[string]bool, len(items))
	err := g.db.View(func(txn *badger.Txn) error {
		for _, item := range items {
			allowed, err := g.evaluate(ctx, txn, item.Tuple)
			if err != nil {
				return err
			}
			out[item.CorrelationID] = allowed
		}
		return nil
	})
	if err != nil {
		return nil, backendErr("batch check", err)
	}
	return out, nil
}

func (g *GraphBackend) evaluate(ctx context.Context, txn *badger.Txn, tuple TupleKey) (bool, error) {
	subj, err := parseSubject(tuple.User)
	if err != nil {
		return false, err
	}
	e := &evaluator{
		ctx:      ctx,
		txn:      txn,
		model:    g.model,
		subj:     subj,
		raw:      tuple.User,
		visited:  make(map[string]bool),
		maxDepth: g.maxDepth,
	}
	return e.check(tuple.Object, schema.RelationName(tuple.Relation), 0)
}

type evaluator struct {
	ctx      context.Context
	txn      *badger.Txn
	model    *schema.Schema
	subj     subject
	raw      string
	visited  map[string]bool
	maxDepth int
}

func (e *evaluator) check(object string, rel schema.RelationName, depth int) (bool, error) {
	if depth > e.maxDepth {
		return false, fmt.Errorf("%w: %s#%s", ErrDepthExceeded, object, rel)
	}
	if err := e.ctx.Err(); err != nil {
		return false, err
	}
	typ, id, err := splitObject(object)
	if err != nil {
		return false, err
	}
	if id == "" || id == "*" {
		return false, fmt.Errorf("%w: cannot check on %q", ErrInvalidTuple, object)
	}
	r, ok := e.model.Relation(schema.TypeName(typ), rel)
	if !ok {
		return false, fmt.Errorf("%w: type %s has no relation %s", ErrInvalidTuple, typ, rel)
	}

	// Cycle guard: revisiting the same node on the current path cannot add
	// a new way in.
	node := object + "#" + string(rel)
	if e.visited[node] {
		return false, nil
	}
	e.visited[node] = true
	defer delete(e.visited, node)

	for _, us := range r.Usersets {
		ok, err := e.userset(object, typ, rel, us, depth)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (e *evaluator) userset(object, typ string, rel schema.RelationName, us schema.Userset, depth int) (bool, error) {
	switch {
	case len(us.This) > 0:
		return e.direct(object, rel, us.This, depth)

	case us.ComputedRelation != "":
		return e.check(object, us.ComputedRelation, depth)

	case us.TupleToUserset != nil:
		targets, err := e.users(object, string(us.TupleToUserset.TuplesetRelation), "")
		if err != nil {
			return false, err
		}
		for _, target := range targets {
			if strings.Contains(target, "#") {
				continue
			}
			tt, _, err := splitObject(target)
			if err != nil {
				continue
			}
			if _, ok := e.model.Relation(schema.TypeName(tt), us.TupleToUserset.ComputedUsersetRelation); !ok {
				continue
			}
			ok, err := e.check(target, us.TupleToUserset.ComputedUsersetRelation, depth+1)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil

	case len(us.Intersection) > 0:
		for _, child := range us.Intersection {
			ok, err := e.userset(object, typ, rel, child, depth)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case us.Exclusion != nil:
		ok, err := e.userset(object, typ, rel, us.Exclusion.Base, depth)
		if err != nil || !ok {
			return false, err
		}
		excluded, err := e.userset(object, typ, rel, us.Exclusion.Subtract, depth)
		if err != nil {
			return false, err
		}
		return !excluded, nil
	}
	return false, fmt.Errorf("%w: empty userset on %s#%s", ErrInvalidTuple, typ, rel)
}

// direct resolves stored membership: the exact subject, a wildcard of the
// subject's type, or a userset that contains the subject.
func (e *evaluator) direct(object string, rel schema.RelationName, refs []schema.SubjectRef, depth int) (bool, error) {
	base := TupleKey{Object: object, Relation: string(rel)}

	base.User = e.raw
	if found, err := e.exists(base); err != nil || found {
		return found, err
	}

	for _, ref := range refs {
		if !ref.Wildcard || ref.Type != schema.TypeName(e.subj.Type) || e.subj.wildcard() {
			continue
		}
		base.User = e.subj.Type + ":*"
		if found, err := e.exists(base); err != nil || found {
			return found, err
		}
	}

	for _, ref := range refs {
		if ref.Relation == "" {
			continue
		}
		members, err := e.users(object, string(rel), string(ref.Type)+":")
		if err != nil {
			return false, err
		}
		suffix := "#" + string(ref.Relation)
		for _, m := range members {
			if !strings.HasSuffix(m, suffix) || m == e.raw {
				continue
			}
			ok, err := e.check(strings.TrimSuffix(m, suffix), ref.Relation, depth+1)
			if err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

func (e *evaluator) exists(t TupleKey) (bool, error) {
	_, err := e.txn.Get(forwardKey(t))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// users lists the stored users of object#relation whose string starts with
// userPrefix.
func (e *evaluator) users(object, relation, userPrefix string) ([]string, error) {
	prefix := []byte(forwardPrefix + object + "#" + relation + "@" + userPrefix)
	strip := len(forwardPrefix) + len(object) + len(relation) + 2

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := e.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, string(it.Item().Key()[strip:]))
	}
	return out, nil
}

type continuationToken struct {
	After string `json:"after"`
}

func encodeContinuation(key []byte) (string, error) {
	data, err := json.Marshal(continuationToken{After: string(key)})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeContinuation(token string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: continuation token: %v", ErrInvalidTuple, err)
	}
	var ct continuationToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("%w: continuation token: %v", ErrInvalidTuple, err)
	}
	return []byte(ct.After), nil
}

// readPlan picks the index and filter for a ReadKey.
func readPlan(key ReadKey) (prefix []byte, match func(TupleKey) bool, err error) {
	_, id, objErr := splitObject(key.Object)
	fullObject := key.Object != "" && objErr == nil && id != ""

	switch {
	case fullObject:
		p := forwardPrefix + key.Object + "#"
		if key.Relation != "" {
			p += key.Relation + "@"
		}
		return []byte(p), func(t TupleKey) bool {
			return key.User == "" || t.User == key.User
		}, nil
	case key.User != "":
		p := reversePrefix + key.User + "|"
		if key.Object != "" {
			if objErr != nil {
				return nil, nil, objErr
			}
			p += key.Object
		}
		return []byte(p), func(t TupleKey) bool {
			return key.Relation == "" || t.Relation == key.Relation
		}, nil
	case key.Object == "" && key.Relation == "":
		return []byte(forwardPrefix), func(TupleKey) bool { return true }, nil
	}
	return nil, nil, fmt.Errorf("%w: read by type or relation requires a user", ErrInvalidTuple)
}

// Read implements Backend. Results are ordered by the index key.
func (g *GraphBackend) Read(ctx context.Context, key ReadKey, pageSize int, continuation string) (ReadPage, error) {
	if err := ctx.Err(); err != nil {
		return ReadPage{}, err
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	prefix, match, err := readPlan(key)
	if err != nil {
		return ReadPage{}, err
	}
	start := prefix
	var after []byte
	if continuation != "" {
		if after, err = decodeContinuation(continuation); err != nil {
			return ReadPage{}, err
		}
		if !bytes.HasPrefix(after, prefix) {
			return ReadPage{}, fmt.Errorf("%w: continuation token does not match filter", ErrInvalidTuple)
		}
		start = after
	}

	var page ReadPage
	err = g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var last []byte
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if after != nil && bytes.Equal(item.Key(), after) {
				continue
			}
			if len(page.Tuples) == pageSize {
				token, err := encodeContinuation(last)
				if err != nil {
					return err
				}
				page.Continuation = token
				return nil
			}
			var t TupleKey
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			last = item.KeyCopy(nil)
			if match(t) {
				page.Tuples = append(page.Tuples, t)
			}
		}
		return nil
	})
	if err != nil {
		return ReadPage{}, backendErr("read", err)
	}
	return page, nil
}

// Write implements Backend. Writing an existing tuple or deleting an absent
// one is a no-op.
func (g *GraphBackend) Write(ctx context.Context, writes, deletes []TupleKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seen := make(map[TupleKey]struct{}, len(writes))
	for _, t := range writes {
		if err := g.validate(t); err != nil {
			return err
		}
		seen[t] = struct{}{}
	}
	for _, t := range deletes {
		if _, _, err := splitObject(t.Object); err != nil {
			return err
		}
		if _, err := parseSubject(t.User); err != nil {
			return err
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %s is both written and deleted", ErrInvalidTuple, t)
		}
	}

	err := g.db.Update(func(txn *badger.Txn) error {
		for _, t := range deletes {
			if err := txn.Delete(forwardKey(t)); err != nil {
				return fmt.Errorf("delete %s: %w", t, err)
			}
			if err := txn.Delete(reverseKey(t)); err != nil {
				return fmt.Errorf("delete reverse %s: %w", t, err)
			}
		}
		for _, t := range writes {
			val, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshal tuple: %w", err)
			}
			if err := txn.Set(forwardKey(t), val); err != nil {
				return fmt.Errorf("set %s: %w", t, err)
			}
			if err := txn.Set(reverseKey(t), val); err != nil {
				return fmt.Errorf("set reverse %s: %w", t, err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return backendErr("write", err)
}

// validate checks a tuple to be written against the model.
func (g *GraphBackend) validate(t TupleKey) error {
	typ, id, err := splitObject(t.Object)
	if err != nil {
		return err
	}
	if id == "" || id == "*" || strings.ContainsAny(id, "#@|") {
		return fmt.Errorf("%w: object %q", ErrInvalidTuple, t.Object)
	}
	subj, err := parseSubject(t.User)
	if err != nil {
		return err
	}
	if strings.Contains(t.Relation, "@") || strings.Contains(t.Relation, "#") {
		return fmt.Errorf("%w: relation %q", ErrInvalidTuple, t.Relation)
	}
	if !g.model.AllowsSubject(schema.TypeName(typ), schema.RelationName(t.Relation),
		schema.TypeName(subj.Type), schema.RelationName(subj.Relation), subj.wildcard()) {
		return fmt.Errorf("%w: %s not allowed on %s#%s", ErrInvalidTuple, t.User, typ, t.Relation)
	}
	return nil
}
