package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"orgpulse/config"
)

// ErrInvalidToken is returned by verifiers for tokens that fail validation
// for any reason. Callers only need to know the token was rejected.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier checks a bearer token and resolves the user it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// NewVerifier picks a verifier for the configured identity backend. Remote
// delegation wins when a service URL is set; otherwise a shared JWT secret
// enables local validation. Returns nil when neither is configured.
func NewVerifier(cfg config.IdentityConfig) TokenVerifier {
	if cfg.URL != "" && cfg.ServiceKey != "" {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		return &remoteVerifier{
			baseURL:    strings.TrimRight(cfg.URL, "/"),
			serviceKey: cfg.ServiceKey,
			client:     &http.Client{Timeout: timeout},
		}
	}
	if cfg.JWTSecret != "" {
		return &localVerifier{secret: []byte(cfg.JWTSecret)}
	}
	return nil
}

// remoteVerifier delegates token checks to the identity service's user
// endpoint, the same call the original frontend SDK performs.
type remoteVerifier struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

func (v *remoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("building identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.serviceKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ErrInvalidToken
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.ID == "" {
		return "", ErrInvalidToken
	}
	return body.ID, nil
}

// localVerifier validates HS256 tokens signed with a shared secret.
type localVerifier struct {
	secret []byte
}

func (v *localVerifier) Verify(_ context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

const userIDKey = "user_id"

// AuthMiddleware guards protected routes. With auth disabled every request
// runs as a synthetic dev user. With no verifier configured requests fail
// with 503 so a misconfigured deployment is loud rather than open.
func AuthMiddleware(cfg config.IdentityConfig, verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.DisableAuth {
				c.Set(userIDKey, "dev-user")
				return next(c)
			}
			if verifier == nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"error":   "Service Unavailable",
					"message": "Authentication service not configured",
				})
			}
			token := bearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "Unauthorized",
					"message": "Missing authentication token",
				})
			}
			if len(token) < 10 {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "Unauthorized",
					"message": "Invalid authentication token",
				})
			}
			userID, err := verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "Unauthorized",
					"message": "Invalid authentication token",
				})
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
