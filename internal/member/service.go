// Package member handles registration, profile refresh, and token-based
// authentication for chat users.
package member

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/database"
	"github.com/puppylog/pawbot/internal/line"
)

const tokenLifetime = 30 * 24 * time.Hour

const lineProfileURL = "https://api.line.me/v2/profile"

// Claims is the auth token payload.
type Claims struct {
	MemberID    string `json:"member_id"`
	LineID      string `json:"line_id"`
	DisplayName string `json:"display_name"`
	MemberLevel string `json:"member_level"`
	jwt.RegisteredClaims
}

// Service manages members on top of the data access component and signs
// auth tokens with a shared secret.
type Service struct {
	db         *database.DB
	jwtSecret  []byte
	profileURL string
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithProfileURL overrides the LINE profile endpoint; tests point it at a
// local server.
func WithProfileURL(url string) Option {
	return func(s *Service) { s.profileURL = url }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the member service.
func NewService(db *database.DB, jwtSecret string, opts ...Option) *Service {
	s := &Service{
		db:         db,
		jwtSecret:  []byte(jwtSecret),
		profileURL: lineProfileURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterOrUpdate upserts a member from a LINE profile. New members get a
// generated member id, basic tier, and default preferences; existing
// members get their display fields refreshed.
func (s *Service) RegisterOrUpdate(ctx context.Context, profile *line.Profile) (*database.Member, error) {
	if profile == nil || profile.UserID == "" {
		return nil, &database.ValidationError{Message: "profile is missing required fields", Fields: []string{"userId"}}
	}

	existing, err := s.db.GetMemberByLineID(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}

	m := &database.Member{
		LineID:        profile.UserID,
		DisplayName:   profile.DisplayName,
		PictureURL:    profile.PictureURL,
		StatusMessage: profile.StatusMessage,
		IsActive:      true,
		MemberLevel:   "basic",
	}
	if existing != nil {
		m.MemberID = existing.MemberID
		m.MemberLevel = existing.MemberLevel
		m.Preferences = existing.Preferences
		m.Stats = existing.Stats
		m.CreatedAt = existing.CreatedAt
		m.LoginCount = existing.LoginCount
	} else {
		m.MemberID = "member_" + uuid.NewString()
		m.Preferences = &database.Preferences{
			Language: "zh-TW",
			Timezone: "Asia/Taipei",
			Notifications: database.Notifications{
				TaskReminder: true,
				DailySummary: true,
			},
		}
		m.Stats = &database.MemberStats{LoginCount: 1}
		logrus.WithField("displayName", profile.DisplayName).Info("registering new member")
	}
	m.LastLoginAt = s.now().UTC().Format(time.RFC3339)

	return s.db.UpsertMember(ctx, m)
}

// AuthenticateWithLineToken exchanges a LINE access token for a member and
// a signed auth token: it fetches the profile, upserts the member, records
// the login, and issues the token.
func (s *Service) AuthenticateWithLineToken(ctx context.Context, accessToken string) (*database.Member, string, error) {
	profile, err := s.fetchLineProfile(ctx, accessToken)
	if err != nil {
		return nil, "", err
	}

	m, err := s.RegisterOrUpdate(ctx, profile)
	if err != nil {
		return nil, "", err
	}

	if err := s.db.LogMemberLogin(ctx, m.MemberID, nil); err != nil {
		logrus.WithError(err).Warn("login logging failed")
	}

	token, err := s.IssueToken(m)
	if err != nil {
		return nil, "", err
	}
	return m, token, nil
}

// IssueToken signs a 30-day auth token for the member.
func (s *Service) IssueToken(m *database.Member) (string, error) {
	now := s.now()
	claims := Claims{
		MemberID:    m.MemberID,
		LineID:      m.LineID,
		DisplayName: m.DisplayName,
		MemberLevel: m.MemberLevel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// VerifyToken parses and validates an auth token.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Deactivate soft-deletes a member.
func (s *Service) Deactivate(ctx context.Context, memberID string) (*database.Member, error) {
	return s.db.SetMemberActive(ctx, memberID, false)
}

// Reactivate restores a soft-deleted member.
func (s *Service) Reactivate(ctx context.Context, memberID string) (*database.Member, error) {
	return s.db.SetMemberActive(ctx, memberID, true)
}

type claimsKey struct{}

// ClaimsFromContext returns the verified claims attached by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Middleware authenticates requests carrying "Authorization: Bearer
// <token>" and attaches the verified claims to the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		claims, err := s.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (s *Service) fetchLineProfile(ctx context.Context, accessToken string) (*line.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.profileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch line profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch line profile: status %d", resp.StatusCode)
	}

	var profile line.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode line profile: %w", err)
	}
	return &profile, nil
}
