// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package check

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/catalog"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

// operationJSON is the flat wire form of an Operation:
//
//	{"kind": "table", "action": "drop", "warehouse-id": "...", "namespace": ["a"], "table": "t"}
type operationJSON struct {
	Kind        Kind                   `json:"kind"`
	Action      string                 `json:"action"`
	ProjectID   *entity.ProjectID      `json:"project-id,omitempty"`
	WarehouseID *entity.WarehouseID    `json:"warehouse-id,omitempty"`
	NamespaceID *entity.NamespaceID    `json:"namespace-id,omitempty"`
	Namespace   catalog.NamespaceIdent `json:"namespace,omitempty"`
	TableID     *uuid.UUID             `json:"table-id,omitempty"`
	Table       string                 `json:"table,omitempty"`
	ViewID      *uuid.UUID             `json:"view-id,omitempty"`
	View        string                 `json:"view,omitempty"`
}

type checkItemJSON struct {
	ID        *string            `json:"id,omitempty"`
	Identity  *entity.UserOrRole `json:"identity,omitempty"`
	Operation json.RawMessage    `json:"operation"`
}

func (c CheckItem) MarshalJSON() ([]byte, error) {
	op, err := encodeOperation(c.Operation)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(checkItemJSON{ID: c.ID, Identity: c.Identity, Operation: raw})
}

func (c *CheckItem) UnmarshalJSON(b []byte) error {
	var in checkItemJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if len(in.Operation) == 0 {
		return fmt.Errorf("%w: missing operation", ErrBadRequest)
	}
	var op operationJSON
	if err := json.Unmarshal(in.Operation, &op); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	decoded, err := op.decode()
	if err != nil {
		return err
	}
	if in.Identity != nil && in.Identity.IsZero() {
		in.Identity = nil
	}
	*c = CheckItem{ID: in.ID, Identity: in.Identity, Operation: decoded}
	return nil
}

func (o operationJSON) decode() (Operation, error) {
	switch o.Kind {
	case KindServer:
		var op ServerOp
		if err := parseAction(o, &op.Action); err != nil {
			return nil, err
		}
		return op, nil
	case KindProject:
		op := ProjectOp{Project: o.ProjectID}
		if err := parseAction(o, &op.Action); err != nil {
			return nil, err
		}
		return op, nil
	case KindWarehouse:
		wh, err := o.warehouse()
		if err != nil {
			return nil, err
		}
		op := WarehouseOp{Warehouse: wh}
		if err := parseAction(o, &op.Action); err != nil {
			return nil, err
		}
		return op, nil
	case KindNamespace:
		wh, err := o.warehouse()
		if err != nil {
			return nil, err
		}
		op := NamespaceOp{Warehouse: wh, ID: o.NamespaceID, Ident: o.Namespace}
		if op.ID == nil && len(op.Ident) == 0 {
			return nil, fmt.Errorf("%w: namespace check needs namespace-id or namespace", ErrBadRequest)
		}
		if err := parseAction(o, &op.Action); err != nil {
			return nil, err
		}
		return op, nil
	case KindTable:
		ref, err := o.tabular(o.TableID, o.Table)
		if err != nil {
			return nil, err
		}
		op := TableOp{Table: ref}
		if err := parseAction(o, &op.Action); err != nil {
			return nil, err
		}
		return op, nil
	case KindView:
		ref, err := o.tabular(o.ViewID, o.View)
		if err != nil {
			return nil, err
		}
		op := ViewOp{View: ref}
		if err := parseAction(o, &op.Action); err != nil {
			return nil, err
		}
		return op, nil
	}
	return nil, fmt.Errorf("%w: unknown operation kind %q", ErrBadRequest, o.Kind)
}

func (o operationJSON) warehouse() (entity.WarehouseID, error) {
	if o.WarehouseID == nil {
		return entity.WarehouseID{}, fmt.Errorf("%w: %s check needs warehouse-id", ErrBadRequest, o.Kind)
	}
	return *o.WarehouseID, nil
}

func (o operationJSON) tabular(id *uuid.UUID, name string) (TabularRef, error) {
	wh, err := o.warehouse()
	if err != nil {
		return TabularRef{}, err
	}
	ref := TabularRef{Warehouse: wh, ID: id}
	if id == nil {
		if name == "" || len(o.Namespace) == 0 {
			return TabularRef{}, fmt.Errorf("%w: %s check needs an id or namespace and name", ErrBadRequest, o.Kind)
		}
		ref.Ident = catalog.TabularIdent{Namespace: o.Namespace, Name: name}
	}
	return ref, nil
}

func parseAction[A interface{ UnmarshalText([]byte) error }](o operationJSON, dst A) error {
	if err := dst.UnmarshalText([]byte(o.Action)); err != nil {
		return fmt.Errorf("%w: %s action: %v", ErrBadRequest, o.Kind, err)
	}
	return nil
}

func encodeOperation(op Operation) (operationJSON, error) {
	switch v := op.(type) {
	case ServerOp:
		return operationJSON{Kind: KindServer, Action: string(v.Action)}, nil
	case ProjectOp:
		return operationJSON{Kind: KindProject, Action: string(v.Action), ProjectID: v.Project}, nil
	case WarehouseOp:
		return operationJSON{Kind: KindWarehouse, Action: string(v.Action), WarehouseID: &v.Warehouse}, nil
	case NamespaceOp:
		return operationJSON{
			Kind: KindNamespace, Action: string(v.Action), WarehouseID: &v.Warehouse,
			NamespaceID: v.ID, Namespace: v.Ident,
		}, nil
	case TableOp:
		out := tabularJSON(KindTable, string(v.Action), v.Table)
		out.TableID, out.Table = v.Table.ID, v.Table.Ident.Name
		return out, nil
	case ViewOp:
		out := tabularJSON(KindView, string(v.Action), v.View)
		out.ViewID, out.View = v.View.ID, v.View.Ident.Name
		return out, nil
	}
	return operationJSON{}, fmt.Errorf("%w: unsupported operation %T", ErrBadRequest, op)
}

func tabularJSON(kind Kind, action string, ref TabularRef) operationJSON {
	out := operationJSON{Kind: kind, Action: action, WarehouseID: &ref.Warehouse}
	if ref.ID == nil {
		out.Namespace = ref.Ident.Namespace
	}
	return out
}
