// Package auth verifies caller sessions against the backend-as-a-service auth API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrUnauthenticated = errors.New("user not authenticated")

// User is the authenticated caller. It is passed explicitly to every
// operation that acts on someone's behalf.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// BaaSVerifier asks GET {BaseURL}/auth/v1/user who owns the token.
type BaaSVerifier struct {
	HTTP    *http.Client
	BaseURL string
	AnonKey string
}

func NewBaaSVerifier(baseURL, anonKey string, timeout time.Duration) *BaaSVerifier {
	return &BaaSVerifier{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		AnonKey: anonKey,
	}
}

func (v *BaaSVerifier) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", v.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := v.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, ErrUnauthenticated
	default:
		return nil, fmt.Errorf("auth service: %s", res.Status)
	}
	var u User
	if err := json.NewDecoder(res.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("auth service: decode user: %w", err)
	}
	if u.ID == "" {
		return nil, ErrUnauthenticated
	}
	return &u, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
