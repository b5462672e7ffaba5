package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tansanrao/nexus/core/clock"
	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// JWTConfig configures token issuance and verification. All fields are
// required; NewJWTService does not check them.
type JWTConfig struct {
	Secret        string
	Issuer        string
	Audience      string
	AccessTokenTTL time.Duration
	Leeway        time.Duration // clock-skew tolerance on verification
}

func DefaultJWTConfig(secret, issuer, audience string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         issuer,
		Audience:       audience,
		AccessTokenTTL: 15 * time.Minute,
		Leeway:         30 * time.Second,
	}
}

// JWTService issues and verifies HS256 access tokens carrying
// domain.AccessTokenClaims. Grounded on the original jsonwebtoken-based
// JwtService: same claim shape, same HS256/leeway configuration, ported to
// golang-jwt/jwt/v5.
type JWTService struct {
	cfg   JWTConfig
	clock clock.Clock
}

func NewJWTService(cfg JWTConfig, c clock.Clock) *JWTService {
	return &JWTService{cfg: cfg, clock: c}
}

// accessTokenClaims is the wire representation signed into the JWT; it
// embeds jwt.RegisteredClaims so golang-jwt's parser can validate exp/iss/aud
// natively, with the domain-specific fields alongside.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email        string              `json:"email"`
	Role         domain.Role         `json:"role"`
	Permissions  []domain.Permission `json:"permissions"`
	TokenVersion int64               `json:"token_version"`
}

// SignedToken is an issued access token and when it expires.
type SignedToken struct {
	Token     string
	ExpiresAt time.Time
}

// IssueAccessToken signs a new access token for the given user, carrying
// their current role, permission set, and token_version.
func (s *JWTService) IssueAccessToken(user domain.User) (SignedToken, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   formatUserID(user.ID),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email:        user.Email,
		Role:         user.Role,
		Permissions:  domain.RolePermissions[user.Role],
		TokenVersion: user.TokenVersion,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return SignedToken{}, apperr.Fatal("sign access token", err)
	}
	return SignedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// VerifyAccessToken parses and validates a bearer token's signature,
// issuer, audience, and expiry, returning its claims. It does not check
// token_version against the current user record; callers that need
// revocation-on-logout semantics should run the result through
// TokenVersionCache.
func (s *JWTService) VerifyAccessToken(tokenString string) (domain.AccessTokenClaims, error) {
	claims := &accessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(s.clock.Now),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if isExpired(err) {
			return domain.AccessTokenClaims{}, apperr.TokenExpired()
		}
		return domain.AccessTokenClaims{}, apperr.InvalidCredentials()
	}

	exp, _ := claims.GetExpirationTime()
	iat, _ := claims.GetIssuedAt()
	return domain.AccessTokenClaims{
		Subject:      claims.Subject,
		Issuer:       claims.Issuer,
		Audience:     firstAudience(claims.Audience),
		IssuedAt:     iat.Unix(),
		ExpiresAt:    exp.Unix(),
		JTI:          claims.ID,
		Email:        claims.Email,
		Role:         claims.Role,
		Permissions:  claims.Permissions,
		TokenVersion: claims.TokenVersion,
	}, nil
}

func isExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func firstAudience(aud jwt.ClaimStrings) string {
	if len(aud) == 0 {
		return ""
	}
	return aud[0]
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
