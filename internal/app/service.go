package app

import (
	"context"
	"time"

	"findr/api/internal/auth"
	"findr/api/internal/authpw"
	"findr/api/internal/blob"
	"findr/api/internal/config"
	"findr/api/internal/email"
	"findr/api/internal/events"
	"findr/api/internal/export"
	"findr/api/internal/feed"
	"findr/api/internal/rbac"
	"findr/api/internal/search"
	"findr/api/internal/store"
	"findr/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service depends on.
type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u store.User) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	SetUserVerified(ctx context.Context, userID string, verified bool) (bool, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertItem(ctx context.Context, item store.Item) error
	InsertItemWithAdminNote(ctx context.Context, item store.Item, note store.AdminNotification) error
	MarkItemVerified(ctx context.Context, itemID, adminID string) (bool, error)
	GetItem(ctx context.Context, id string) (store.Item, error)
	ListItems(ctx context.Context, filter store.ItemFilter) ([]store.Item, error)
	ListItemsByPoster(ctx context.Context, userID string) ([]store.Item, error)
	UpdateItem(ctx context.Context, id string, upd store.ItemUpdate) (bool, error)
	DeleteItem(ctx context.Context, id string) (bool, error)

	GetClaim(ctx context.Context, id string) (store.Claim, error)
	ListClaimsByClaimant(ctx context.Context, userID string) ([]store.Claim, error)
	ListPendingClaims(ctx context.Context) ([]store.Claim, error)
	PendingClaimExists(ctx context.Context, itemID, claimantID string) (bool, error)
	PendingItemIDsForClaimant(ctx context.Context, userID string) ([]string, error)
	InsertClaimBundle(ctx context.Context, bundle store.ClaimBundle) error
	ResolveClaim(ctx context.Context, res store.ClaimResolution) (store.ResolveResult, error)

	GetChat(ctx context.Context, id string) (store.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]store.Chat, error)
	ListChatMessages(ctx context.Context, chatID string) ([]store.ChatMessage, error)
	AppendChatMessage(ctx context.Context, msg store.ChatMessage) error
	MarkChatRead(ctx context.Context, chatID, userID string) (bool, error)

	ListNotifications(ctx context.Context, userID string) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (bool, error)
	ListAdminNotifications(ctx context.Context, status string) ([]store.AdminNotification, error)
	ResolveAdminNotification(ctx context.Context, id, status, resolvedBy string) (bool, error)
}

// sessionStore keeps refresh sessions out of Postgres so they expire on
// their own.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Deps are the collaborators the service is wired with. Search, Events,
// Email, Blobs, and Export may be nil; the corresponding features degrade
// gracefully.
type Deps struct {
	Store    dataStore
	Sessions sessionStore
	Auth     *authpw.Service
	Feed     *feed.Projector
	Search   *search.Service
	Events   *events.Publisher
	Email    *email.Service
	Blobs    *blob.Store
	Export   *export.Service
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	feed     *feed.Projector
	search   *search.Service
	events   *events.Publisher
	email    *email.Service
	blobs    *blob.Store
	export   *export.Service
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		authpw:   deps.Auth,
		feed:     deps.Feed,
		search:   deps.Search,
		events:   deps.Events,
		email:    deps.Email,
		blobs:    deps.Blobs,
		export:   deps.Export,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Feed exposes the projector for subscription endpoints.
func (s *Service) Feed() *feed.Projector {
	return s.feed
}

// --- Sessions ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return Session{}, domainError(400, "SIGNUP_FAILED", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.authpw.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(401, "INVALID_CREDENTIALS", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Name, user.Role, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// RequestPasswordReset issues a reset token and mails it when SMTP is
// configured. The returned token is surfaced in the response only when mail
// is not configured, as a development convenience.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, bool, error) {
	token, err := s.authpw.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return "", false, err
	}
	if token == "" {
		return "", s.SMTPConfigured(), nil
	}
	if s.SMTPConfigured() {
		user, err := s.store.GetUserByEmail(ctx, emailAddr)
		if err == nil {
			resetURL := s.cfg.CORSOrigin + "/reset-password?token=" + token
			_ = s.email.SendPasswordResetEmail(user.Email, user.Name, resetURL)
		}
		return "", true, nil
	}
	return token, false, nil
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	if err := s.authpw.ResetPassword(ctx, req); err != nil {
		return domainError(400, "RESET_FAILED", err.Error(), nil)
	}
	return nil
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}
