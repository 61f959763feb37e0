package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errNoToken      = errors.New("no auth token")
	errTokenInvalid = errors.New("authorization token invalid")
)

// tokenFromRequest reads the auth_token cookie or a bearer Authorization header
func tokenFromRequest(c *gin.Context) (string, error) {
	if v, err := c.Cookie("auth_token"); err == nil && v != "" {
		return v, nil
	}

	h := c.GetHeader("Authorization")
	if v, ok := strings.CutPrefix(h, "Bearer "); ok && v != "" {
		return v, nil
	}

	return "", errNoToken
}

// ParseToken validates an HS256 signed auth token and returns its user id
func ParseToken(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}

		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w, %w", errTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errTokenInvalid
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errTokenInvalid
	}

	return userID, nil
}

// NewJWTMiddleware authenticates the caller and sets userID and role. With
// required set to false a missing or bad token lets the request through
// anonymously instead of rejecting it.
func NewJWTMiddleware(d *gorm.DB, secret []byte, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		tokenStr, err := tokenFromRequest(c)
		if err != nil {
			if !required {
				c.Next()
				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "No auth token provided",
				"requestID": requestID,
			})
			return
		}

		userID, err := ParseToken(tokenStr, secret)
		if err != nil {
			if !required {
				c.Next()
				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})

			zap.L().Debug("Failed to parse token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		// Tokens of deleted users are rejected
		var user model.User
		err = d.
			Select("id", "role").
			Where("id = ?", userID).
			First(&user).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if !required {
					c.Next()
					return
				}

				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "User not found",
					"requestID": requestID,
				})
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to check if user exists", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		c.Set("userID", user.ID)
		c.Set("role", user.Role)
		c.Next()
	}
}

// Caller describes whoever the JWT middleware authenticated, or an anonymous caller
func Caller(c *gin.Context) service.Caller {
	userID := c.GetString("userID")
	if userID == "" {
		return service.Caller{}
	}

	role, _ := c.MustGet("role").(model.Role)
	return service.Caller{UserID: userID, Role: role, Authenticated: true}
}
