// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package auth turns bearer tokens into catalog actors.
//
// A request without credentials is anonymous when the server allows it. A
// valid token makes the caller a principal; an additional x-assume-role
// header makes the principal act through one of its roles, provided the
// principal may assume it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/timoguin/lakekeeper-sub000/internal/authz"
	"github.com/timoguin/lakekeeper-sub000/internal/config"
	"github.com/timoguin/lakekeeper-sub000/internal/entity"
)

// AssumeRoleHeader names the role a principal acts through.
const AssumeRoleHeader = "x-assume-role"

var (
	// ErrNoCredentials indicates no bearer token was sent.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates the token failed verification.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates the token has expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrInvalidAssumedRole indicates a malformed x-assume-role header.
	ErrInvalidAssumedRole = errors.New("invalid assumed role")

	// ErrRoleNotAssumable indicates the principal may not assume the role.
	ErrRoleNotAssumable = errors.New("role cannot be assumed by this principal")
)

// RoleVerifier decides whether a principal may act through a role.
type RoleVerifier interface {
	CanAssume(ctx context.Context, user entity.UserID, role entity.RoleID) (bool, error)
}

// EngineRoles checks the assume action on the role in the authorization
// graph.
type EngineRoles struct {
	Engine *authz.Engine
}

func (e EngineRoles) CanAssume(ctx context.Context, user entity.UserID, role entity.RoleID) (bool, error) {
	meta := entity.RequestMetadata{Actor: entity.Principal(user)}
	got, err := e.Engine.AreAllowedRoleActions(ctx, meta, nil, []authz.RoleCheck{{Role: role, Action: entity.RoleAssume}})
	if err != nil {
		return false, err
	}
	return len(got) == 1 && got[0], nil
}

// Authenticator resolves the actor of a request.
type Authenticator struct {
	manager        *JWTManager
	roles          RoleVerifier
	idPrefix       string
	allowAnonymous bool
}

// NewAuthenticator creates an authenticator. roles may be nil, in which case
// x-assume-role is rejected.
func NewAuthenticator(manager *JWTManager, cfg *config.SecurityConfig, roles RoleVerifier) *Authenticator {
	return &Authenticator{
		manager:        manager,
		roles:          roles,
		idPrefix:       cfg.IDPrefix,
		allowAnonymous: cfg.AllowAnonymous,
	}
}

// UserID maps a token subject to a user id, e.g. "abc" to "oidc~abc".
func (a *Authenticator) UserID(subject string) entity.UserID {
	if a.idPrefix == "" {
		return entity.UserID(subject)
	}
	return entity.UserID(a.idPrefix + "~" + subject)
}

// Authenticate returns the actor for r.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (entity.Actor, error) {
	token := bearerToken(r)
	if token == "" {
		if a.allowAnonymous && r.Header.Get(AssumeRoleHeader) == "" {
			return entity.Anonymous(), nil
		}
		return entity.Actor{}, ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return entity.Actor{}, ErrExpiredCredentials
		}
		return entity.Actor{}, ErrInvalidCredentials
	}
	user := a.UserID(claims.Subject)

	header := strings.TrimSpace(r.Header.Get(AssumeRoleHeader))
	if header == "" {
		return entity.Principal(user), nil
	}
	role, err := entity.ParseRoleID(header)
	if err != nil {
		return entity.Actor{}, fmt.Errorf("%w: %v", ErrInvalidAssumedRole, err)
	}
	if a.roles == nil {
		return entity.Actor{}, ErrRoleNotAssumable
	}
	ok, err := a.roles.CanAssume(ctx, user, role)
	if err != nil {
		return entity.Actor{}, fmt.Errorf("verify assumed role: %w", err)
	}
	if !ok {
		return entity.Actor{}, ErrRoleNotAssumable
	}
	return entity.AssumingRole(user, role), nil
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
