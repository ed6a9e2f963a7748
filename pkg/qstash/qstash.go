// Package qstash is a minimal Upstash QStash client: publish JSON jobs to a
// delivery URL and verify the signature QStash attaches when it calls the
// receiving webhook back.
package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the JWT QStash signs each delivery with.
const SignatureHeader = "Upstash-Signature"

var (
	ErrMissingSignature = errors.New("missing upstash signature")
	ErrInvalidSignature = errors.New("invalid upstash signature")
)

type Config struct {
	URL               string        `split_words:"true" required:"true"`
	Token             string        `split_words:"true" required:"true"`
	CurrentSigningKey string        `split_words:"true" required:"true"`
	NextSigningKey    string        `split_words:"true" required:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish enqueues a JSON payload for delivery to destinationURL.
func (c *Client) Publish(ctx context.Context, destinationURL string, payload any) error {
	if strings.TrimSpace(destinationURL) == "" {
		return errors.New("destination url is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal qstash payload: %w", err)
	}

	endpoint := c.baseURL + "/v2/publish/" + destinationURL
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qstash publish status=%d body=%s", resp.StatusCode, string(raw))
	}

	return nil
}

// Verify checks the Upstash-Signature JWT of an inbound delivery against
// the current signing key, falling back to the next key during rotation.
// The token's body claim must match the sha256 of the request body.
func (c *Client) Verify(signature string, body []byte) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}

	if err := c.verifyWithKey(signature, body, c.currentSigningKey); err == nil {
		return nil
	}
	if err := c.verifyWithKey(signature, body, c.nextSigningKey); err == nil {
		return nil
	}
	return ErrInvalidSignature
}

func (c *Client) verifyWithKey(signature string, body []byte, key string) error {
	if key == "" {
		return ErrInvalidSignature
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(signature, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(key), nil
	}, jwt.WithIssuer("Upstash"), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrInvalidSignature
	}

	bodyClaim, _ := claims["body"].(string)
	sum := sha256.Sum256(body)
	expected := base64.URLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(bodyClaim, "=") != strings.TrimRight(expected, "=") {
		return ErrInvalidSignature
	}

	return nil
}
