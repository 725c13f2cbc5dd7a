package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/database"
	"storefront/internal/models"
)

type RegisterInput struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Phone     string `json:"phone"`
}

// Session is returned after a successful customer login.
type Session struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         *models.User `json:"user"`
}

type IdentityService struct {
	users      UserRepository
	admins     AdminRepository
	refresh    RefreshTokenRepository
	tokens     *auth.Tokens
	refreshTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewIdentityService(users UserRepository, admins AdminRepository, refresh RefreshTokenRepository, tokens *auth.Tokens, refreshTTL time.Duration, log *zap.Logger) *IdentityService {
	return &IdentityService{
		users:      users,
		admins:     admins,
		refresh:    refresh,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		log:        log.Named("auth"),
		now:        time.Now,
	}
}

var errInvalidCredentials = apperr.New(apperr.KindUnauthorized, apperr.CodeUnauthorized, "invalid credentials")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	user := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     models.FullName{FirstName: in.FirstName, LastName: in.LastName},
		Phone:        strings.TrimSpace(in.Phone),
		Addresses:    []models.SavedAddress{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeConflict, "email already registered")
		}
		return nil, apperr.As(err)
	}

	s.log.Info("user registered", zap.String("userId", user.ID.Hex()))
	return s.startSession(ctx, user)
}

func (s *IdentityService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.As(err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		s.log.Info("login rejected", zap.String("userId", user.ID.Hex()))
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, apperr.CodeForbidden, "user is inactive")
	}
	return s.startSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and linked
// to its replacement.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	plain := strings.TrimSpace(refreshToken)
	if plain == "" {
		return nil, apperr.Validation("validation failed", "refreshToken is required")
	}

	stored, err := s.refresh.FindActive(ctx, auth.HashRefreshToken(plain))
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.CodeUnauthorized, "invalid refresh token")
	}
	if err != nil {
		return nil, apperr.As(err)
	}
	if stored.Expired(s.now()) {
		_ = s.refresh.Revoke(ctx, stored.ID, nil)
		return nil, apperr.New(apperr.KindUnauthorized, apperr.CodeUnauthorized, "refresh token expired")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.CodeUnauthorized, "user not found")
	}
	if err != nil {
		return nil, apperr.As(err)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, apperr.CodeForbidden, "user is inactive")
	}

	session, newID, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Revoke(ctx, stored.ID, &newID); err != nil {
		s.log.Warn("refresh token revoke failed", zap.String("tokenId", stored.ID.Hex()), zap.Error(err))
	}
	return session, nil
}

func (s *IdentityService) Logout(ctx context.Context, refreshToken string) error {
	plain := strings.TrimSpace(refreshToken)
	if plain == "" {
		return apperr.Validation("validation failed", "refreshToken is required")
	}
	ok, err := s.refresh.RevokeByHash(ctx, auth.HashRefreshToken(plain))
	if err != nil {
		return apperr.As(err)
	}
	if !ok {
		return apperr.New(apperr.KindUnauthorized, apperr.CodeUnauthorized, "invalid refresh token")
	}
	return nil
}

func (s *IdentityService) Me(ctx context.Context, p auth.Principal) (*models.User, error) {
	user, err := s.users.FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}
	return user, nil
}

// ListUsers is the admin view of customer accounts.
func (s *IdentityService) ListUsers(ctx context.Context, q database.UserQuery) ([]models.User, Pagination, error) {
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	users, total, err := s.users.List(ctx, q)
	if err != nil {
		return nil, Pagination{}, apperr.As(err)
	}
	return users, Pagination{Page: q.Page, Limit: q.Limit, Total: total}, nil
}

func (s *IdentityService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}
	return user, nil
}

// AdminLogin returns an admin access token.
func (s *IdentityService) AdminLogin(ctx context.Context, email, password string) (string, error) {
	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return "", errInvalidCredentials
	}
	if err != nil {
		return "", apperr.As(err)
	}
	if !auth.CheckPassword(admin.PasswordHash, password) {
		s.log.Info("admin login rejected", zap.String("adminId", admin.ID.Hex()))
		return "", errInvalidCredentials
	}

	token, err := s.tokens.Issue(auth.Principal{ID: admin.ID, Email: admin.Email, Role: auth.RoleAdmin})
	if err != nil {
		return "", apperr.Internal(err)
	}
	s.log.Info("admin logged in", zap.String("adminId", admin.ID.Hex()))
	return token, nil
}

// CreateAdmin provisions an admin account.
func (s *IdentityService) CreateAdmin(ctx context.Context, email, name, password string) (*models.Admin, error) {
	email = normalizeEmail(email)
	details := make([]string, 0)
	if err := validate.Var(email, "required,email"); err != nil {
		details = append(details, "email is invalid")
	}
	if len(password) < 8 {
		details = append(details, "password must be at least 8 characters")
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details...)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	admin := &models.Admin{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.admins.Insert(ctx, admin); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeConflict, "email already registered")
		}
		return nil, apperr.As(err)
	}
	s.log.Info("admin created", zap.String("adminId", admin.ID.Hex()))
	return admin, nil
}

func (s *IdentityService) startSession(ctx context.Context, user *models.User) (*Session, error) {
	session, _, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info("user logged in", zap.String("userId", user.ID.Hex()))
	return session, nil
}

func (s *IdentityService) issue(ctx context.Context, user *models.User) (*Session, primitive.ObjectID, error) {
	access, err := s.tokens.Issue(auth.Principal{ID: user.ID, Email: user.Email, Role: auth.RoleCustomer})
	if err != nil {
		return nil, primitive.NilObjectID, apperr.Internal(err)
	}
	plain, err := auth.NewRefreshToken()
	if err != nil {
		return nil, primitive.NilObjectID, apperr.Internal(err)
	}

	now := s.now()
	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashRefreshToken(plain),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.refresh.Insert(ctx, record); err != nil {
		return nil, primitive.NilObjectID, apperr.As(err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: plain,
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
		User:         user,
	}, record.ID, nil
}
