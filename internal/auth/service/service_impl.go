package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/auth/password"
	"github.com/smallbiznis/controlplane/internal/auth/repository"
	"github.com/smallbiznis/controlplane/internal/clock"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenPrefix = "cp_"
	tokenTTL    = 24 * time.Hour
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]{1,150}$`)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Ledger quotadomain.Ledger
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	ledger quotadomain.Ledger
	repo   domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("auth.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		ledger: p.Ledger,
		repo:   repository.Provide(),
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	return s.CreateUserTx(ctx, s.db, req)
}

// CreateUserTx validates and inserts a user. Quota accounting is the caller's job.
func (s *Service) CreateUserTx(ctx context.Context, tx *gorm.DB, req domain.CreateUserRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleMember
	}
	if !usernamePattern.MatchString(username) {
		return nil, domain.ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}
	if err := password.Validate(req.Password); err != nil {
		return nil, err
	}

	taken, err := s.repo.UsernameExists(ctx, tx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrUserExists
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate(),
		TenantID:     req.TenantID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertUser(ctx, tx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return s.repo.UsernameExists(ctx, s.db, strings.TrimSpace(username))
}

func (s *Service) DeleteUser(ctx context.Context, tenantID, userID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindUserByID(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		if user.Role == domain.RoleOwner {
			return domain.ErrCannotDeleteOwner
		}
		if err := s.repo.DeleteTokensForUser(ctx, tx, tenantID, userID); err != nil {
			return err
		}
		if err := s.repo.DeleteUser(ctx, tx, tenantID, userID); err != nil {
			return err
		}
		if err := s.ledger.ReleaseTx(ctx, tx, tenantID, quotadomain.KindUsers, 1); err != nil {
			return err
		}
		s.log.Info("user deleted",
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", userID.String()),
		)
		return nil
	})
}

// CountMembers counts metered users. The signup owner is not metered.
func (s *Service) CountMembers(ctx context.Context, tenantID snowflake.ID) (int64, error) {
	return s.repo.CountUsersExcludingRole(ctx, s.db, tenantID, domain.RoleOwner)
}

func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredTokens(ctx, s.db, s.clock.Now())
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
	user, err := s.repo.FindUserByUsername(ctx, s.db, req.TenantID, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := s.clock.Now()
	id := ulid.Make().String()
	raw := tokenPrefix + strings.ToLower(id) + "_" + hex.EncodeToString(secret)

	token := &domain.AccessToken{
		ID:        id,
		TenantID:  user.TenantID,
		UserID:    user.ID,
		TokenHash: domain.HashToken(raw),
		ExpiresAt: now.Add(tokenTTL),
		CreatedAt: now,
	}
	if err := s.repo.InsertToken(ctx, s.db, token); err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		Token:     raw,
		TokenID:   id,
		ExpiresAt: token.ExpiresAt,
		User:      *user,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, tenantID snowflake.ID, rawToken string) (*domain.Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if !strings.HasPrefix(rawToken, tokenPrefix) {
		return nil, domain.ErrTokenInvalid
	}
	token, err := s.repo.FindTokenByHash(ctx, s.db, domain.HashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if token == nil || token.TenantID != tenantID || token.RevokedAt != nil {
		return nil, domain.ErrTokenInvalid
	}
	now := s.clock.Now()
	if !now.Before(token.ExpiresAt) {
		return nil, domain.ErrTokenExpired
	}

	user, err := s.repo.FindUserByID(ctx, s.db, token.TenantID, token.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrTokenInvalid
	}

	if err := s.repo.TouchToken(ctx, s.db, token.ID, now); err != nil {
		s.log.Warn("failed to touch access token", zap.String("token_id", token.ID), zap.Error(err))
	}

	return &domain.Principal{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
		TokenID:  token.ID,
	}, nil
}
