// Package auth issues and verifies the HS256 session tokens handed out at login.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"shramsaathi-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "shramsaathi"

var ErrInvalidToken = errors.New("invalid token")

type sessionClaims struct {
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// HMACIssuer signs tokens with a shared secret.
type HMACIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewHMACIssuer(secret string, ttl time.Duration) *HMACIssuer {
	return &HMACIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *HMACIssuer) Issue(c domain.Claims) (string, error) {
	now := i.now()
	claims := sessionClaims{
		Phone: c.Phone,
		Role:  c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(c.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *HMACIssuer) Verify(tokenString string) (*domain.Claims, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return &domain.Claims{UserID: id, Phone: claims.Phone, Role: claims.Role}, nil
}
