package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrBadSignature = errors.New("invalid webhook signature")

// Campay transaction statuses.
const (
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
	StatusPending    = "PENDING"
)

// Webhook is the notification Campay sends when a collection settles.
// It arrives as query parameters or a form body.
type Webhook struct {
	Status            string `form:"status" json:"status"`
	Reference         string `form:"reference" json:"reference"`
	ExternalReference string `form:"external_reference" json:"external_reference"`
	Amount            string `form:"amount" json:"amount"`
	Currency          string `form:"currency" json:"currency"`
	Operator          string `form:"operator" json:"operator"`
	Signature         string `form:"signature" json:"signature"`
}

// Verify checks the HS256 token Campay signs with the app's webhook key and
// that every transaction field the token carries agrees with the plain
// fields. A token for one transaction cannot vouch for another.
func (w Webhook) Verify(key string) error {
	if key == "" || w.Signature == "" {
		return ErrBadSignature
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(w.Signature, claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return ErrBadSignature
	}
	for name, got := range map[string]string{
		"external_reference": w.ExternalReference,
		"reference":          w.Reference,
		"status":             w.Status,
		"amount":             w.Amount,
		"currency":           w.Currency,
	} {
		v, ok := claims[name]
		if !ok {
			continue
		}
		if !strings.EqualFold(claimString(v), got) {
			return fmt.Errorf("%w: %s does not match", ErrBadSignature, name)
		}
	}
	return nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprint(t)
	}
}
