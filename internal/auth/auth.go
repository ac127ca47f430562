package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// Verifier validates admin credentials, issues/decodes admin session
// tokens, and resolves device tokens to profiles.
type Verifier struct {
	store     storage.Store
	secret    []byte
	expiry    time.Duration
	username  string
	passwdSum string // bcrypt hash
}

// NewVerifier creates the verifier.
func NewVerifier(store storage.Store, secret, username, passwordHash string, expiry time.Duration) *Verifier {
	return &Verifier{
		store:     store,
		secret:    []byte(secret),
		expiry:    expiry,
		username:  username,
		passwdSum: passwordHash,
	}
}

// VerifyAdmin checks the admin username and password.
func (v *Verifier) VerifyAdmin(username, password string) bool {
	if username != v.username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.passwdSum), []byte(password)) == nil
}

// HashPassword returns the bcrypt hash for an admin password (used by
// setup tooling and tests).
func HashPassword(password string) (string, error) {
	sum, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(sum), nil
}

// IssueAdminToken creates a signed session token for an admin.
func (v *Verifier) IssueAdminToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(v.secret)
}

// DecodeAdminToken validates a session token and returns the admin
// identity, or "" if the token is invalid or expired.
func (v *Verifier) DecodeAdminToken(token string) string {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ""
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return ""
	}
	return claims.Subject
}

// VerifyDeviceToken resolves a device bearer token to its profile.
func (v *Verifier) VerifyDeviceToken(ctx context.Context, token string) (*model.Device, error) {
	return v.store.GetDeviceByToken(ctx, token)
}

// GenerateDeviceToken mints a random url-safe device token.
func GenerateDeviceToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("auth: rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
