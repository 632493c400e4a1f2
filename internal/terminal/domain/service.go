package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ScopeSyncWrite    = "sync:write"
	ScopeCatalogRead  = "catalog:read"
	ScopeApprovalVoid = "approval:void"
)

type Service interface {
	List(ctx context.Context, tenantID snowflake.ID) ([]Response, error)
	Get(ctx context.Context, tenantID snowflake.ID, code string) (*Response, error)
	Register(ctx context.Context, tenantID snowflake.ID, req RegisterRequest) (*SecretResponse, error)
	RotateSecret(ctx context.Context, tenantID snowflake.ID, code string) (*SecretResponse, error)
	Lock(ctx context.Context, tenantID snowflake.ID, code string) error
	Unlock(ctx context.Context, tenantID snowflake.ID, code string) error
	Deactivate(ctx context.Context, tenantID snowflake.ID, code string) error

	// Authenticate resolves a terminal by code and verifies the request
	// signature over the raw body. Unknown and inactive terminals fail
	// the same way as a bad signature; a locked terminal with a valid
	// signature fails with ErrLocked.
	Authenticate(ctx context.Context, code, signature string, body []byte) (*Terminal, error)
}

type RegisterRequest struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type Response struct {
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	IsActive   bool       `json:"is_active"`
	IsLocked   bool       `json:"is_locked"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

type SecretResponse struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

var (
	ErrInvalidCode   = errors.New("invalid_code")
	ErrInvalidName   = errors.New("invalid_name")
	ErrDuplicateCode = errors.New("duplicate_code")
	ErrNotFound      = errors.New("terminal_not_found")
	ErrUnauthorized  = errors.New("terminal_unauthorized")
	ErrLocked        = errors.New("terminal_locked")
)
