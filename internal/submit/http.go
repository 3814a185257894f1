package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"puntoventa/terminal/internal/domain"
)

type terminalClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// HTTPSubmitter pushes pending orders to the remote order service as JSON,
// authenticated with a short-lived terminal token. Any non-2xx response is a
// submit failure: the sweep leaves the order pending and moves on.
type HTTPSubmitter struct {
	client     *http.Client
	orderURL   string
	healthURL  string
	terminalID string
	secret     []byte
	tokenTTL   time.Duration
}

func NewHTTPSubmitter(orderURL string, healthURL string, terminalID string, secret string) *HTTPSubmitter {
	return &HTTPSubmitter{
		client:     &http.Client{Timeout: 10 * time.Second},
		orderURL:   orderURL,
		healthURL:  healthURL,
		terminalID: terminalID,
		secret:     []byte(secret),
		tokenTTL:   2 * time.Minute,
	}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, order domain.PendingOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.orderURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// The order id doubles as the idempotency key so a re-submitted order is
	// deduplicated server side.
	req.Header.Set("X-Idempotency-Key", order.ID)

	token, err := s.sign()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("order service responded %d", resp.StatusCode)
	}
	return nil
}

// Probe reports whether the remote order service is reachable right now.
func (s *HTTPSubmitter) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint responded %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSubmitter) sign() (string, error) {
	now := time.Now().UTC()
	claims := terminalClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   s.terminalID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.tokenTTL)),
		},
		Role: "terminal",
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
