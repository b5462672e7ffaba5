// Package auth implements AuthCore: JWT access-token issuance and
// verification, argon2id password hashing, and a Redis-backed
// token_version cache so per-user global logout doesn't require a
// database round trip on every request.
package auth

import (
	"context"
	"strconv"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// Core is the auth component wired into the HTTP-facing layer: it resolves
// credentials to a signed token and verifies a bearer token back to claims,
// rejecting anything the user's current state has invalidated.
type Core struct {
	store     port.Store
	jwt       *JWTService
	passwords *PasswordService
	versions  *TokenVersionCache
}

func NewCore(store port.Store, jwt *JWTService, versions *TokenVersionCache) *Core {
	return &Core{store: store, jwt: jwt, passwords: NewPasswordService(), versions: versions}
}

// Login verifies an email/password pair against the stored user record and
// issues a fresh access token. Disabled or locked accounts are rejected
// before the password is even checked, mirroring auth/error.rs's ordering.
func (c *Core) Login(ctx context.Context, email, password string) (SignedToken, error) {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return SignedToken{}, apperr.Transient("begin login tx", err)
	}
	defer tx.Rollback()

	user, err := tx.GetUserByEmail(ctx, email)
	if err != nil {
		return SignedToken{}, apperr.DatabaseError("lookup user", err)
	}
	if user == nil {
		return SignedToken{}, apperr.InvalidCredentials()
	}
	if user.Disabled {
		return SignedToken{}, apperr.AccountDisabled()
	}
	if user.Locked {
		return SignedToken{}, apperr.AccountLocked()
	}

	ok, err := c.passwords.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return SignedToken{}, err
	}
	if !ok {
		return SignedToken{}, apperr.InvalidCredentials()
	}

	c.versions.Set(ctx, user.ID, user.TokenVersion)
	return c.jwt.IssueAccessToken(*user)
}

// Verify validates a bearer token's signature and claims, then checks the
// embedded token_version against the current value (cache-first, database
// on miss). A mismatch means the token was issued before the user's last
// global logout and must be rejected even though the signature is valid.
func (c *Core) Verify(ctx context.Context, tokenString string) (domain.AccessTokenClaims, error) {
	claims, err := c.jwt.VerifyAccessToken(tokenString)
	if err != nil {
		return domain.AccessTokenClaims{}, err
	}

	userID, err := parseUserID(claims.Subject)
	if err != nil {
		return domain.AccessTokenClaims{}, apperr.InvalidCredentials()
	}

	current, ok := c.versions.Get(ctx, userID)
	if !ok {
		tx, err := c.store.BeginTx(ctx)
		if err != nil {
			return domain.AccessTokenClaims{}, apperr.Transient("begin verify tx", err)
		}
		current, err = tx.GetTokenVersion(ctx, userID)
		tx.Rollback()
		if err != nil {
			return domain.AccessTokenClaims{}, apperr.DatabaseError("load token version", err)
		}
		c.versions.Set(ctx, userID, current)
	}

	if claims.TokenVersion != current {
		return domain.AccessTokenClaims{}, apperr.TokenReuseDetected(claims.Subject)
	}
	return claims, nil
}

// Logout bumps a user's token_version, invalidating every access token
// issued before this call regardless of its expiry.
func (c *Core) Logout(ctx context.Context, userID int64) error {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return apperr.Transient("begin logout tx", err)
	}
	defer tx.Rollback()

	if err := tx.IncrementTokenVersion(ctx, userID); err != nil {
		return apperr.DatabaseError("increment token version", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit logout", err)
	}
	c.versions.Invalidate(ctx, userID)
	return nil
}

// HashPassword hashes password with the Core's password service.
func (c *Core) HashPassword(password string) (string, error) {
	return c.passwords.HashPassword(password)
}

// HasPermission reports whether role carries perm, per the fixed
// admin-superset-of-user table in domain.RolePermissions.
func HasPermission(role domain.Role, perm domain.Permission) bool {
	for _, p := range domain.RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

func parseUserID(subject string) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, apperr.InvalidCredentials()
	}
	return id, nil
}
