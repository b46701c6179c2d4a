// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

type cacheMode int

const (
	cacheUse cacheMode = iota
	cacheMinVersion
	cacheSkip
)

// CachePolicy controls how a read treats cached rows.
type CachePolicy struct {
	mode       cacheMode
	minVersion int64
}

var (
	// Use returns any unexpired cached row.
	Use = CachePolicy{mode: cacheUse}

	// Skip reads from the store and refreshes the cache.
	Skip = CachePolicy{mode: cacheSkip}
)

// RequireMinimumVersion accepts cached rows at version v or newer.
func RequireMinimumVersion(v int64) CachePolicy {
	return CachePolicy{mode: cacheMinVersion, minVersion: v}
}

// Accepts reports whether a cached row at version may be returned.
func (p CachePolicy) Accepts(version int64) bool {
	switch p.mode {
	case cacheUse:
		return true
	case cacheMinVersion:
		return version >= p.minVersion
	}
	return false
}

// MinVersion returns the required version, or zero.
func (p CachePolicy) MinVersion() int64 {
	if p.mode == cacheMinVersion {
		return p.minVersion
	}
	return 0
}

func (p CachePolicy) String() string {
	switch p.mode {
	case cacheMinVersion:
		return fmt.Sprintf("min_version(%d)", p.minVersion)
	case cacheSkip:
		return "skip"
	}
	return "use"
}

// Store resolves catalog entities. Absent entities are left out of result
// maps and single lookups return nil; callers decide whether absence is an
// error.
type Store interface {
	GetWarehouse(ctx context.Context, id entity.WarehouseID, status []WarehouseStatus, policy CachePolicy) (*Warehouse, error)
	GetWarehousesByID(ctx context.Context, ids []entity.WarehouseID, status []WarehouseStatus) (map[entity.WarehouseID]*Warehouse, error)

	GetNamespaceByID(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, policy CachePolicy) (*NamespaceHierarchy, error)
	GetNamespaceByIdent(ctx context.Context, warehouse entity.WarehouseID, ident NamespaceIdent, policy CachePolicy) (*NamespaceHierarchy, error)

	// GetNamespacesByID and GetNamespacesByIdent return hierarchies keyed
	// by id and by NamespaceIdent.Key respectively.
	GetNamespacesByID(ctx context.Context, warehouse entity.WarehouseID, ids []entity.NamespaceID, policy CachePolicy) (map[entity.NamespaceID]NamespaceHierarchy, error)
	GetNamespacesByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []NamespaceIdent, policy CachePolicy) (map[string]NamespaceHierarchy, error)

	// GetTabularInfosByIdent is keyed by TabularIdent.Key.
	GetTabularInfosByID(ctx context.Context, warehouse entity.WarehouseID, ids []uuid.UUID, flags TabularListFlags) (map[uuid.UUID]TabularInfo, error)
	GetTabularInfosByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []TabularIdent, flags TabularListFlags) (map[string]TabularInfo, error)

	BeginRead(ctx context.Context) (ReadTx, error)
	BeginWrite(ctx context.Context) (WriteTx, error)
}

// Reader is the uncached read surface of a transaction.
type Reader interface {
	Warehouses(ctx context.Context, ids []entity.WarehouseID) (map[entity.WarehouseID]*Warehouse, error)
	Namespaces(ctx context.Context, warehouse entity.WarehouseID, ids []entity.NamespaceID) (map[entity.NamespaceID]Namespace, error)
	NamespacesByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []NamespaceIdent) (map[string]Namespace, error)
	TabularsByID(ctx context.Context, warehouse entity.WarehouseID, ids []uuid.UUID, flags TabularListFlags) (map[uuid.UUID]TabularInfo, error)
	TabularsByIdent(ctx context.Context, warehouse entity.WarehouseID, idents []TabularIdent, flags TabularListFlags) (map[string]TabularInfo, error)
}

// ReadTx is a read snapshot. Rollback after Commit is a no-op.
type ReadTx interface {
	Reader
	Commit() error
	Rollback() error
}

// WriteTx mutates the catalog. Every writer bumps the version of the row it
// changes and records it in the transaction's Change.
type WriteTx interface {
	ReadTx

	CreateWarehouse(ctx context.Context, w *Warehouse) error
	SetWarehouseStatus(ctx context.Context, id entity.WarehouseID, status WarehouseStatus) (*Warehouse, error)

	CreateNamespace(ctx context.Context, ns *Namespace) error
	DropNamespace(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, force bool) error
	SetNamespaceProtection(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, protected bool) (*Namespace, error)
	UpdateNamespaceProperties(ctx context.Context, warehouse entity.WarehouseID, id entity.NamespaceID, updates map[string]string, removals []string) (*Namespace, error)

	CreateTabular(ctx context.Context, t *TabularInfo) error
	DropTabular(ctx context.Context, warehouse entity.WarehouseID, id uuid.UUID, force bool) error

	// OnCommit registers fn to run after a successful Commit.
	OnCommit(fn func(Change))
}

// Change lists the rows a committed transaction touched.
type Change struct {
	Warehouses []entity.WarehouseID
	Namespaces []entity.NamespaceID
}

func (c *Change) addWarehouse(id entity.WarehouseID) { c.Warehouses = append(c.Warehouses, id) }
func (c *Change) addNamespace(id entity.NamespaceID) { c.Namespaces = append(c.Namespaces, id) }

// Config configures the metadata store and its caches.
type Config struct {
	// Path is the DuckDB file. Empty opens an in-memory database.
	Path      string
	Threads   int
	MaxMemory string

	MaxNamespaceDepth int
	FetchChunkSize    int

	CacheEnabled  bool
	CacheTTL      time.Duration
	CacheCapacity int
}

// DefaultConfig returns production defaults with an in-memory database.
func DefaultConfig() Config {
	return Config{
		MaxMemory:         "1GB",
		MaxNamespaceDepth: 16,
		FetchChunkSize:    100,
		CacheEnabled:      true,
		CacheTTL:          time.Minute,
		CacheCapacity:     10000,
	}
}
