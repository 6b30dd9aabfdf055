/**
 * @description
 * This file implements credential handling for the bank-service: bcrypt password
 * hashing and HS256 session tokens. It is the single place that touches secrets;
 * the transaction engine consumes it through the app.Authenticator interface and
 * the API layer through ParseToken.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token signing and verification.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 * - github.com/google/uuid: Account ids inside token claims.
 */

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the verified contents of a session token.
type Claims struct {
	AccountID uuid.UUID
	Role      string
}

// Authenticator hashes passwords and mints/verifies HS256 session tokens.
type Authenticator struct {
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewAuthenticator creates an Authenticator. The signing secret must be
// non-empty; cost values outside bcrypt's supported range fall back to the
// library default.
func NewAuthenticator(secret string, tokenTTL time.Duration, bcryptCost int) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Authenticator{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
	}, nil
}

func (a *Authenticator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (a *Authenticator) VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// IssueToken mints an HS256 token carrying the account id as subject and the
// account's role as a custom claim.
func (a *Authenticator) IssueToken(accountID uuid.UUID, role string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  accountID.String(),
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(a.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry of a session token and returns
// its claims. Any verification failure maps to ErrInvalidToken.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrInvalidToken
	}
	accountID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	role, _ := mapClaims["role"].(string)

	return &Claims{AccountID: accountID, Role: role}, nil
}
