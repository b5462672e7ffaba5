package domain

// Role is a fixed set mapping to permission sets; Admin is a superset of User.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Permission is a fine-grained capability string carried in access tokens.
type Permission string

const (
	PermReadArchive   Permission = "archive:read"
	PermManageLists   Permission = "lists:manage"
	PermManageUsers   Permission = "users:manage"
	PermTriggerSync   Permission = "sync:trigger"
)

// RolePermissions is the fixed role-to-permission table; admin is a
// superset of user.
var RolePermissions = map[Role][]Permission{
	RoleUser: {
		PermReadArchive,
	},
	RoleAdmin: {
		PermReadArchive,
		PermManageLists,
		PermManageUsers,
		PermTriggerSync,
	},
}

// User is an authenticated principal. PasswordHash is argon2id-encoded
// (see core/auth). TokenVersion is incremented to force global logout.
type User struct {
	ID            int64
	Email         string
	DisplayName   string
	PasswordHash  string
	Role          Role
	TokenVersion  int64
	Disabled      bool
	Locked        bool
}

// AccessTokenClaims mirrors the JWT payload issued by core/auth. It is
// never persisted; it exists only on the wire and inside verification.
type AccessTokenClaims struct {
	Subject      string       `json:"sub"`
	Issuer       string       `json:"iss"`
	Audience     string       `json:"aud"`
	IssuedAt     int64        `json:"iat"`
	ExpiresAt    int64        `json:"exp"`
	JTI          string       `json:"jti"`
	Email        string       `json:"email"`
	Role         Role         `json:"role"`
	Permissions  []Permission `json:"permissions"`
	TokenVersion int64        `json:"token_version"`
}
