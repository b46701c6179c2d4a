// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package services

import (
	"context"
	"fmt"

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
)

// ResourceService ties a resource opened before the tree to the tree's
// lifetime: Serve blocks until ctx ends and then closes the resource once.
type ResourceService struct {
	name   string
	closer func() error
	closed bool
}

// NewResourceService wraps closer under name. A nil closer is allowed.
func NewResourceService(name string, closer func() error) *ResourceService {
	return &ResourceService{name: name, closer: closer}
}

// Serve implements suture.Service.
func (s *ResourceService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if s.closed || s.closer == nil {
		return ctx.Err()
	}
	s.closed = true
	if err := s.closer(); err != nil {
		logging.Warn().Err(err).Str("resource", s.name).Msg("Resource close failed")
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	logging.Debug().Str("resource", s.name).Msg("Resource closed")
	return ctx.Err()
}

func (s *ResourceService) String() string { return s.name }
