package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	ctxStaffID   = "staff_id"
	ctxStaffRole = "staff_role"
)

// Staff roles allowed to correct stock by hand
const (
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

type staffClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// TokenVerifier checks terminal bearer tokens signed with a shared HS256
// secret. The subject is the staff user id.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Sign issues a token. Used by tooling and tests.
func (v *TokenVerifier) Sign(staffID, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates a token and returns its subject and role
func (v *TokenVerifier) Parse(tokenStr string) (string, string, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errors.New("token has no subject")
	}
	return sub, claims.Role, nil
}

// authMiddleware rejects requests without a valid bearer token
func authMiddleware(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenStr) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Missing bearer token",
			})
			return
		}

		staffID, role, err := v.Parse(strings.TrimSpace(tokenStr))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
				"details": err.Error(),
			})
			return
		}

		c.Set(ctxStaffID, staffID)
		c.Set(ctxStaffRole, role)
		c.Next()
	}
}

// requireRole rejects authenticated staff whose role is not listed
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxStaffRole)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "Forbidden",
			"details": fmt.Sprintf("role %q may not perform this action", role),
		})
	}
}
