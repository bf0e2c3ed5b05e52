package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rakshak/internal/utils"
)

// ControlAudience is the audience a signed control token must carry.
const ControlAudience = "rakshak-control"

// ControlClaims identifies the UI or companion app holding a signed token.
type ControlClaims struct {
	jwt.RegisteredClaims
}

// bearer extracts the presented token. Browsers cannot set headers on
// websocket upgrades, so ?token= is accepted when no header is present.
func bearer(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		authHeader = "Bearer " + c.Query("token")
	}
	presented := strings.TrimPrefix(authHeader, "Bearer ")
	if presented == authHeader || presented == "" {
		return "", false
	}
	return presented, true
}

func unauthorized(c *gin.Context, message string) {
	utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
	c.Abort()
}

// TokenRequired guards the control API with a static bearer token. An empty
// token disables the check, which is only sensible on a loopback listener.
func TokenRequired(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented, ok := bearer(c)
		if !ok {
			unauthorized(c, "bearer token required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			unauthorized(c, "invalid token")
			return
		}

		c.Next()
	}
}

// JWTRequired accepts HS256 tokens signed with secret and addressed to
// ControlAudience. The token subject is stored as "client_id".
func JWTRequired(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ControlAudience),
		jwt.WithExpirationRequired(),
	)
	key := []byte(secret)

	return func(c *gin.Context) {
		presented, ok := bearer(c)
		if !ok {
			unauthorized(c, "bearer token required")
			return
		}

		claims := &ControlClaims{}
		token, err := parser.ParseWithClaims(presented, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "invalid token")
			return
		}

		c.Set("client_id", claims.Subject)
		c.Next()
	}
}
