package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

// AuthUser represents an authenticated user from JWT
type AuthUser struct {
	UserID string `json:"user_id"` // token subject
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// contextKey is used for storing user in context
type contextKey string

const (
	userContextKey contextKey = "authenticated_user"
)

// JWTConfig holds the configuration for JWT middleware
type JWTConfig struct {
	Secret    string
	Logger    *zap.Logger
	SkipPaths []string // Paths to skip JWT validation
}

func unauthorized(c echo.Context, code, message string) error {
	return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// JWTMiddleware creates a middleware that validates HS256 bearer tokens and
// stores the subject as the authenticated user
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip JWT validation for certain paths
			path := c.Request().URL.Path
			for _, skipPath := range config.SkipPaths {
				if strings.HasPrefix(path, skipPath) {
					return next(c)
				}
			}

			// Extract token from Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				config.Logger.Warn("Missing authorization header",
					zap.String("path", path),
					zap.String("method", c.Request().Method))
				return unauthorized(c, "missing_auth_header", "Authorization header required")
			}

			// Check Bearer prefix
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				config.Logger.Warn("Invalid authorization header format",
					zap.String("path", path))
				return unauthorized(c, "invalid_auth_format", "Invalid authorization header format. Expected: Bearer <token>")
			}

			// Parse and validate JWT token
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				// Verify signing method
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(config.Secret), nil
			})
			if err != nil {
				config.Logger.Warn("JWT validation failed",
					zap.Error(err),
					zap.String("path", path))
				return unauthorized(c, "invalid_token", "Invalid or expired token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				config.Logger.Warn("Invalid JWT claims",
					zap.String("path", path))
				return unauthorized(c, "invalid_claims", "Invalid token claims")
			}

			subject, err := claims.GetSubject()
			if err != nil || strings.TrimSpace(subject) == "" {
				config.Logger.Warn("JWT has no subject",
					zap.String("path", path))
				return unauthorized(c, "invalid_claims", "Token subject required")
			}

			// Extract optional fields from JWT claims
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)

			authUser := &AuthUser{
				UserID: subject,
				Email:  email,
				Role:   role,
			}

			// Store user in request context
			ctx := context.WithValue(c.Request().Context(), userContextKey, authUser)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", subject)

			config.Logger.Debug("User authenticated successfully",
				zap.String("user_id", subject),
				zap.String("role", role),
				zap.String("path", path))

			return next(c)
		}
	}
}

// RequireRole rejects authenticated users whose role is not listed
func RequireRole(logger *zap.Logger, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := GetUserFromContext(c)
			if err != nil {
				return unauthorized(c, "auth_required", "Authentication required")
			}
			for _, role := range roles {
				if user.Role == role {
					return next(c)
				}
			}
			logger.Warn("Role not permitted",
				zap.String("user_id", user.UserID),
				zap.String("role", user.Role),
				zap.String("path", c.Request().URL.Path))
			return c.JSON(http.StatusForbidden, apperrors.ErrorResponse{
				Error:   "forbidden",
				Message: "Insufficient permissions",
			})
		}
	}
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(c echo.Context) (*AuthUser, error) {
	user, ok := c.Request().Context().Value(userContextKey).(*AuthUser)
	if !ok || user == nil {
		return nil, fmt.Errorf("no authenticated user found in context")
	}
	return user, nil
}

// RequireAuth is a helper function to get user or return error response
func RequireAuth(c echo.Context) (*AuthUser, error) {
	user, err := GetUserFromContext(c)
	if err != nil {
		return nil, unauthorized(c, "auth_required", "Authentication required")
	}
	return user, nil
}
