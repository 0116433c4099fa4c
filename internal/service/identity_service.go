package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/pkg/util"
)

// NameRepairer retroactively patches stored display-name snapshots.
type NameRepairer interface {
	RepairSenderName(ctx context.Context, userID, newName string) error
}

// IdentityService owns the directory boundary: registration, login and
// profile display-name changes.
type IdentityService struct {
	directory  repository.DirectoryRepository
	tokens     *auth.TokenManager
	repairer   NameRepairer
	dispatch   events.Dispatcher
	bcryptCost int
	logger     *zap.Logger
}

// RegisterInput describes a new directory account.
type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
	Sector      *string
	Role        domain.Role
}

// NewIdentityService constructs the service.
func NewIdentityService(directory repository.DirectoryRepository, tokens *auth.TokenManager, repairer NameRepairer, dispatch events.Dispatcher, bcryptCost int, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{
		directory:  directory,
		tokens:     tokens,
		repairer:   repairer,
		dispatch:   dispatch,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates a directory account and publishes the registration
// event, which fans out to administrators only.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	username := strings.TrimSpace(input.Username)
	displayName := strings.TrimSpace(input.DisplayName)
	switch {
	case username == "":
		return nil, util.NewValidationError("username is required", nil)
	case displayName == "":
		return nil, util.NewValidationError("display name is required", nil)
	case len(input.Password) < 6:
		return nil, util.NewValidationError("password must have at least 6 characters", nil)
	}
	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, util.NewValidationError("unknown role", map[string]any{"role": role})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, util.MapError(err)
	}

	acc := &domain.Account{
		UID:          uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		Role:         role,
		Sector:       input.Sector,
	}
	if err := s.directory.Create(ctx, acc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, util.NewConflict("username already taken", map[string]any{"username": username})
		}
		return nil, util.MapError(err)
	}

	if s.dispatch != nil {
		_ = s.dispatch.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventAccountRegistered,
			Actor:     events.Actor{UserID: acc.UID, Username: acc.Username, Role: acc.Role},
			Timestamp: time.Now(),
			Payload: events.AccountRegisteredPayload{
				Username: acc.Username,
				Role:     acc.Role,
			},
		})
	}
	return acc, nil
}

// Login verifies credentials and issues a signed token.
func (s *IdentityService) Login(ctx context.Context, username, password string) (string, *domain.Account, error) {
	acc, err := s.directory.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, util.NewUnauthorized("invalid credentials")
		}
		return "", nil, util.MapError(err)
	}
	if err := auth.ComparePassword(acc.PasswordHash, password); err != nil {
		return "", nil, util.NewUnauthorized("invalid credentials")
	}

	token, _, err := s.tokens.GenerateToken(acc)
	if err != nil {
		return "", nil, util.MapError(err)
	}
	return token, acc, nil
}

// Resolve returns the directory entry for a username.
func (s *IdentityService) Resolve(ctx context.Context, username string) (*domain.Account, error) {
	acc, err := s.directory.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("account", map[string]any{"username": username})
		}
		return nil, util.MapError(err)
	}
	return acc, nil
}

// UpdateDisplayName changes the caller's own display name and then
// repairs historical chat messages. The repair is best-effort: a failure
// is logged, the rename itself stands.
func (s *IdentityService) UpdateDisplayName(ctx context.Context, caller domain.Caller, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return util.NewValidationError("display name is required", nil)
	}
	if err := s.directory.UpdateDisplayName(ctx, caller.UserID, newName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("account", map[string]any{"uid": caller.UserID})
		}
		return util.MapError(err)
	}
	if s.repairer != nil {
		if err := s.repairer.RepairSenderName(ctx, caller.UserID, newName); err != nil {
			s.logger.Warn("display name repair failed",
				zap.String("uid", caller.UserID), zap.Error(err))
		}
	}
	return nil
}
