package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chrismgala/verifly/internal/config"
)

// stripeSignatureTolerance bounds how old a signed event may be before
// it is rejected as a possible replay.
const stripeSignatureTolerance = 5 * time.Minute

// StripeClient wraps the Stripe Identity verification session endpoints
// and the signed-event webhook scheme.
type StripeClient struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client

	// now is swappable for signature tolerance tests
	now func() time.Time
}

// NewStripeClient creates a new Stripe client
func NewStripeClient(cfg *config.Config) *StripeClient {
	return &StripeClient{
		baseURL:       cfg.StripeAPIURL,
		secretKey:     cfg.StripeSecretKey,
		webhookSecret: cfg.StripeWebhookSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// StripeVerificationSession is an Identity verification session.
type StripeVerificationSession struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
}

// StripeEvent is the signed webhook envelope.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object StripeVerificationSession `json:"object"`
	} `json:"data"`
}

// CreateVerificationSession creates a document verification session with
// the given metadata attached; the metadata is echoed back on webhooks.
func (s *StripeClient) CreateVerificationSession(ctx context.Context, metadata map[string]string) (*StripeVerificationSession, error) {
	form := url.Values{}
	form.Set("type", "document")
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/identity/verification_sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	var session StripeVerificationSession
	if err := s.do(req, &session); err != nil {
		return nil, fmt.Errorf("failed to create Stripe verification session: %w", err)
	}

	return &session, nil
}

// RetrieveVerificationSession fetches a session by id
func (s *StripeClient) RetrieveVerificationSession(ctx context.Context, sessionID string) (*StripeVerificationSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/identity/verification_sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	var session StripeVerificationSession
	if err := s.do(req, &session); err != nil {
		return nil, fmt.Errorf("failed to retrieve Stripe verification session: %w", err)
	}

	return &session, nil
}

func (s *StripeClient) do(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe API error: status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// ConstructEvent verifies a Stripe-Signature header against the raw
// request body and parses the event envelope. The signed payload is
// "<timestamp>.<raw body>"; the v1 scheme is HMAC-SHA256 with the
// webhook secret, compared in constant time. Events outside the
// tolerance window are rejected.
func (s *StripeClient) ConstructEvent(rawBody []byte, signatureHeader string) (*StripeEvent, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("missing Stripe-Signature header")
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid signature timestamp: %w", err)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return nil, fmt.Errorf("malformed Stripe-Signature header")
	}

	age := s.now().Unix() - timestamp
	if age > int64(stripeSignatureTolerance/time.Second) || age < -int64(stripeSignatureTolerance/time.Second) {
		return nil, fmt.Errorf("signature timestamp outside tolerance: %d seconds", age)
	}

	signedPayload := fmt.Sprintf("%d.%s", timestamp, rawBody)
	h := hmac.New(sha256.New, []byte(s.webhookSecret))
	h.Write([]byte(signedPayload))
	expected := hex.EncodeToString(h.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("signature verification failed")
	}

	var event StripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	return &event, nil
}

// SignPayload builds a Stripe-Signature header value for the given body
// and timestamp.
func (s *StripeClient) SignPayload(rawBody []byte, timestamp time.Time) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp.Unix(), rawBody)
	h := hmac.New(sha256.New, []byte(s.webhookSecret))
	h.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(h.Sum(nil)))
}
