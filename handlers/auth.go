package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaydesk/relaydesk/internal/config"
)

// AuthMiddleware performs the per-request capability check: HTTP basic
// against the api_user table, or a bearer JWT signed with the configured
// secret. Everything behind it only ever sees the boolean outcome.
type AuthMiddleware struct {
	PG *sql.DB
}

func NewAuthMiddleware(pg *sql.DB) *AuthMiddleware {
	return &AuthMiddleware{PG: pg}
}

func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if username, password, ok := c.Request.BasicAuth(); ok {
			if m.checkBasic(username, password) {
				c.Set("api_user", username)
				c.Next()
				return
			}
			m.unauthorized(c)
			return
		}
		if token, ok := bearerToken(c); ok {
			if subject, valid := checkBearer(token); valid {
				c.Set("api_user", subject)
				c.Next()
				return
			}
		}
		m.unauthorized(c)
	}
}

func (m *AuthMiddleware) checkBasic(username, password string) bool {
	var hash string
	err := m.PG.QueryRow(`
		SELECT password_hash FROM api_user WHERE username = $1 AND enabled
	`, username).Scan(&hash)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		log.Printf("api_user lookup failed for %q: %v", username, err)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func checkBearer(token string) (string, bool) {
	secret := config.App.JWTSecret
	if secret == "" {
		return "", false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", false
	}
	return subject, true
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
}

func (m *AuthMiddleware) unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="relaydesk-api"`)
	apiError(c, http.StatusUnauthorized, "authentication required")
}
