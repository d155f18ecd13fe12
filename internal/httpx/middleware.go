package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/MikeMC777/afrimarket/internal/auth"
)

const (
	ridKey  = "rid"
	userKey = "user"
)

// HTTPError is the uniform error body.
// swagger:model
type HTTPError struct {
	// example: user not authenticated
	Error string `json:"error"`
}

// Fail aborts the request with {"error": msg}.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, HTTPError{Error: msg})
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ridKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func RID(c *gin.Context) string { return c.GetString(ridKey) }

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("rid", RID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Msg("[http]")
	}
}

// CORS is open to any origin; preflights get an empty 200.
func CORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:       []string{"X-Request-ID", "Idempotent-Replayed"},
		OptionsSuccessStatus: http.StatusOK,
	})
}

// Authenticate resolves the bearer token to a user or answers 401.
func Authenticate(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := v.Verify(c.Request.Context(), auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				log.Warn().Str("rid", RID(c)).Msg("[auth] user not authenticated")
				Fail(c, http.StatusUnauthorized, "user not authenticated")
				return
			}
			log.Error().Err(err).Str("rid", RID(c)).Msg("[auth] verify failed")
			Fail(c, http.StatusInternalServerError, "authentication service unavailable")
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// User returns the caller set by Authenticate.
func User(c *gin.Context) *auth.User {
	u, _ := c.Get(userKey)
	au, _ := u.(*auth.User)
	return au
}
