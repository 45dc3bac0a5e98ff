package issuer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avoronova/sessionkit/internal/backend/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 720 * time.Hour
	defaultSigningMethod   = "HS256"

	// TokenType is the scheme clients present the access token with
	TokenType = "Bearer"

	refreshTokenBytes = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// Pair is what the client receives after login or refresh
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	UserID       uuid.UUID
}

// Issuer config with sensible defaults
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set the default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set the defaults are used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer mints token pairs: a short-lived signed JWT access token and an
// opaque high-entropy refresh token. The refresh token plaintext is handed
// out exactly once; only its hash goes into the session record.
type Issuer struct {
	key        string
	alg        jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*Issuer, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &Issuer{
		key:        cfg.SecretKey,
		alg:        jwt.GetSigningMethod(cfg.Alg),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// IssuePair mints a token pair for the user and returns the session record
// the caller must persist for the refresh token
func (i *Issuer) IssuePair(userID uuid.UUID, now time.Time) (Pair, models.SessionRecord, error) {
	now = now.Truncate(time.Second)
	accessExpiresAt := now.Add(i.accessTTL)

	accessToken := jwt.NewWithClaims(
		i.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
			UserID: userID,
		},
	)
	access, err := accessToken.SignedString([]byte(i.key))
	if err != nil {
		return Pair{}, models.SessionRecord{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return Pair{}, models.SessionRecord{}, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}
	refresh := hex.EncodeToString(b)

	record := models.SessionRecord{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(refresh),
		CreatedAt: now,
		ExpiresAt: now.Add(i.refreshTTL),
		UsedAt:    nil,
	}

	pair := Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.accessTTL / time.Second),
		TokenType:    TokenType,
		UserID:       userID,
	}
	return pair, record, nil
}

// ParseAccess validates the access token and returns the user it belongs to
func (i *Issuer) ParseAccess(access string) (uuid.UUID, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(i.key), nil
		},
		jwt.WithValidMethods([]string{i.alg.Alg()}),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return claims.UserID, nil
}

// HashToken is the one-way mapping from refresh token plaintext to the
// value persisted in session records
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
