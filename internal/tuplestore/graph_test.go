// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package tuplestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/timoguin/lakekeeper-sub000/internal/schema"
)

func testSchema() *schema.Schema {
	d := schema.Direct(schema.Ref("user"), schema.RefWithRelation("team", "member"))
	return schema.New(
		schema.NewType("user"),
		schema.NewType("team",
			schema.Define("member", schema.Direct(schema.Ref("user"), schema.RefWithRelation("team", "member")))),
		schema.NewType("folder",
			schema.Define("parent", schema.Direct(schema.Ref("folder"))),
			schema.Define("locked", schema.Direct(schema.Wildcard("user"), schema.Wildcard("team"))),
			schema.Define("owner", d),
			schema.Define("viewer", d, schema.Computed("owner"), schema.Arrow("parent", "viewer")),
			schema.Define("public", schema.Direct(schema.Wildcard("user"))),
			schema.Define("can_read", schema.Computed("viewer"), schema.Computed("public")),
			schema.Define("can_grant", schema.ButNot(schema.Computed("owner"), schema.Computed("locked"))),
			schema.Define("can_audit", schema.And(schema.Computed("owner"), schema.Computed("viewer"))),
		),
	)
}

func newTestGraph(t *testing.T) *GraphBackend {
	t.Helper()
	g, err := OpenGraph(testSchema(), GraphOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenGraph: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func mustWrite(t *testing.T, b Backend, tuples ...TupleKey) {
	t.Helper()
	if err := b.Write(context.Background(), tuples, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func tk(object, relation, user string) TupleKey {
	return TupleKey{Object: object, Relation: relation, User: user}
}

func TestGraphCheck(t *testing.T) {
	g := newTestGraph(t)
	mustWrite(t, g,
		tk("folder:root", "owner", "user:alice"),
		tk("folder:docs", "parent", "folder:root"),
		tk("folder:docs", "viewer", "team:eng#member"),
		tk("team:eng", "member", "user:bob"),
		tk("team:eng", "member", "team:sre#member"),
		tk("team:sre", "member", "user:carol"),
		tk("folder:pub", "public", "user:*"),
		tk("folder:locked", "owner", "user:alice"),
		tk("folder:locked", "locked", "user:*"),
	)

	tests := []struct {
		name  string
		tuple TupleKey
		want  bool
	}{
		{"direct owner", tk("folder:root", "owner", "user:alice"), true},
		{"computed viewer from owner", tk("folder:root", "viewer", "user:alice"), true},
		{"arrow from parent", tk("folder:docs", "can_read", "user:alice"), true},
		{"userset member", tk("folder:docs", "viewer", "user:bob"), true},
		{"nested userset", tk("folder:docs", "viewer", "user:carol"), true},
		{"userset subject itself", tk("folder:docs", "viewer", "team:eng#member"), true},
		{"not a member", tk("folder:docs", "viewer", "user:mallory"), false},
		{"no upward inheritance", tk("folder:root", "viewer", "user:bob"), false},
		{"wildcard grants anyone", tk("folder:pub", "can_read", "user:mallory"), true},
		{"wildcard check subject", tk("folder:pub", "public", "user:*"), true},
		{"concrete tuple does not grant wildcard", tk("folder:root", "owner", "user:*"), false},
		{"exclusion applies", tk("folder:locked", "can_grant", "user:alice"), false},
		{"exclusion absent", tk("folder:root", "can_grant", "user:alice"), true},
		{"intersection", tk("folder:root", "can_audit", "user:alice"), true},
		{"intersection partial", tk("folder:docs", "can_audit", "user:bob"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Check(context.Background(), tt.tuple)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check(%s) = %v, want %v", tt.tuple, got, tt.want)
			}
		})
	}
}

func TestGraphWildcardMatchesUsersetOfSameType(t *testing.T) {
	g := newTestGraph(t)
	mustWrite(t, g, tk("folder:x", "locked", "team:*"))

	got, err := g.Check(context.Background(), tk("folder:x", "locked", "team:eng#member"))
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("team:* should match team:eng#member")
	}
	got, err = g.Check(context.Background(), tk("folder:x", "locked", "user:alice"))
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("team:* must not match a user")
	}
}

func TestGraphCycleTerminates(t *testing.T) {
	g := newTestGraph(t)
	mustWrite(t, g,
		tk("folder:a", "parent", "folder:b"),
		tk("folder:b", "parent", "folder:a"),
		tk("team:x", "member", "team:y#member"),
		tk("team:y", "member", "team:x#member"),
	)

	for _, tuple := range []TupleKey{
		tk("folder:a", "viewer", "user:alice"),
		tk("team:x", "member", "user:alice"),
	} {
		got, err := g.Check(context.Background(), tuple)
		if err != nil {
			t.Fatalf("Check(%s): %v", tuple, err)
		}
		if got {
			t.Errorf("Check(%s) = true on an empty cycle", tuple)
		}
	}
}

func TestGraphDepthLimit(t *testing.T) {
	g, err := OpenGraph(testSchema(), GraphOptions{InMemory: true, MaxDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	for i := 0; i < 6; i++ {
		mustWrite(t, g, tk(fmt.Sprintf("folder:f%d", i+1), "parent", fmt.Sprintf("folder:f%d", i)))
	}
	_, err = g.Check(context.Background(), tk("folder:f6", "viewer", "user:alice"))
	if !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestGraphWriteValidation(t *testing.T) {
	g := newTestGraph(t)

	tests := []struct {
		name  string
		tuple TupleKey
	}{
		{"unknown relation", tk("folder:a", "editor", "user:alice")},
		{"subject type not allowed", tk("folder:a", "parent", "user:alice")},
		{"wildcard not allowed", tk("folder:a", "owner", "user:*")},
		{"userset not allowed", tk("folder:a", "public", "team:eng#member")},
		{"wildcard object", tk("folder:*", "owner", "user:alice")},
		{"malformed user", tk("folder:a", "owner", "alice")},
		{"wildcard with relation", tk("folder:a", "owner", "team:*#member")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Write(context.Background(), []TupleKey{tt.tuple}, nil)
			if !errors.Is(err, ErrInvalidTuple) {
				t.Errorf("expected ErrInvalidTuple, got %v", err)
			}
		})
	}

	dup := tk("folder:a", "owner", "user:alice")
	if err := g.Write(context.Background(), []TupleKey{dup}, []TupleKey{dup}); !errors.Is(err, ErrInvalidTuple) {
		t.Errorf("expected ErrInvalidTuple for write+delete of same tuple, got %v", err)
	}
}

func TestGraphWriteIdempotent(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	owner := tk("folder:a", "owner", "user:alice")

	mustWrite(t, g, owner)
	mustWrite(t, g, owner)
	if err := g.Write(ctx, nil, []TupleKey{tk("folder:a", "owner", "user:nobody")}); err != nil {
		t.Fatalf("delete of absent tuple: %v", err)
	}

	page, err := g.Read(ctx, ReadKey{Object: "folder:a"}, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Tuples) != 1 {
		t.Fatalf("expected 1 tuple, got %v", page.Tuples)
	}

	if err := g.Write(ctx, nil, []TupleKey{owner}); err != nil {
		t.Fatal(err)
	}
	ok, err := g.Check(ctx, owner)
	if err != nil || ok {
		t.Errorf("after delete Check = %v, %v", ok, err)
	}
	page, err = g.Read(ctx, ReadKey{User: "user:alice"}, 10, "")
	if err != nil || len(page.Tuples) != 0 {
		t.Errorf("reverse index not cleaned: %v, %v", page.Tuples, err)
	}
}

func TestGraphReadPagination(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	var want []TupleKey
	for i := 0; i < 7; i++ {
		tuple := tk("folder:a", "owner", fmt.Sprintf("user:u%02d", i))
		want = append(want, tuple)
	}
	mustWrite(t, g, want...)
	mustWrite(t, g, tk("folder:a", "parent", "folder:root"), tk("folder:b", "owner", "user:u00"))

	var got []TupleKey
	token := ""
	pages := 0
	for {
		page, err := g.Read(ctx, ReadKey{Object: "folder:a", Relation: "owner"}, 3, token)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		pages++
		got = append(got, page.Tuples...)
		if page.Continuation == "" {
			break
		}
		token = page.Continuation
	}
	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tuples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tuple %d = %s, want %s", i, got[i], want[i])
		}
	}

	byUser, err := g.Read(ctx, ReadKey{Object: "folder:", User: "user:u00"}, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser.Tuples) != 2 {
		t.Errorf("expected 2 tuples for user:u00, got %v", byUser.Tuples)
	}

	if _, err := g.Read(ctx, ReadKey{Object: "folder:"}, 10, ""); !errors.Is(err, ErrInvalidTuple) {
		t.Errorf("expected ErrInvalidTuple for type-only read without user, got %v", err)
	}
	if _, err := g.Read(ctx, ReadKey{Object: "folder:b"}, 10, token); !errors.Is(err, ErrInvalidTuple) {
		t.Errorf("expected ErrInvalidTuple for foreign continuation, got %v", err)
	}
}

func TestGraphBatchCheck(t *testing.T) {
	g := newTestGraph(t)
	mustWrite(t, g, tk("folder:a", "owner", "user:alice"))

	out, err := g.BatchCheck(context.Background(), []CheckItem{
		{Tuple: tk("folder:a", "viewer", "user:alice"), CorrelationID: "1"},
		{Tuple: tk("folder:a", "viewer", "user:bob"), CorrelationID: "2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out["1"] || out["2"] {
		t.Errorf("unexpected decisions %v", out)
	}

	_, err = g.BatchCheck(context.Background(), []CheckItem{{Tuple: tk("folder:a", "nope", "user:alice"), CorrelationID: "x"}})
	if !errors.Is(err, ErrInvalidTuple) {
		t.Errorf("expected ErrInvalidTuple for unknown relation, got %v", err)
	}
}

func TestGraphPing(t *testing.T) {
	g, err := OpenGraph(testSchema(), GraphOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenGraph: %v", err)
	}
	if err := g.Ping(context.Background()); err != nil {
		t.Errorf("Ping() on open graph = %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if err := g.Ping(context.Background()); !IsBackendError(err) {
		t.Errorf("Ping() after Close = %v, want backend error", err)
	}
}
