package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chrismgala/verifly/internal/config"
)

// ExcludedDocumentNames lists the placeholder image names Veriff returns
// before real capture; these are filtered out of merchant-facing results.
var ExcludedDocumentNames = []string{
	"document-front-pre",
	"document-back-pre",
	"face-pre",
}

// VeriffClient is a thin wrapper over the Veriff station API.
type VeriffClient struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// NewVeriffClient creates a new Veriff client
func NewVeriffClient(cfg *config.Config) *VeriffClient {
	return &VeriffClient{
		baseURL:   cfg.VeriffAPIURL,
		apiKey:    cfg.VeriffAPIKey,
		secretKey: cfg.VeriffSecretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// VeriffPerson identifies the person a session is created for.
type VeriffPerson struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// VeriffSession is the session object returned on creation.
type VeriffSession struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	VendorData string `json:"vendorData"`
	Status     string `json:"status"`
}

type veriffSessionResponse struct {
	Status       string        `json:"status"`
	Verification VeriffSession `json:"verification"`
}

// VeriffDecision is the decision object for a finished session.
type VeriffDecision struct {
	ID       string                 `json:"id"`
	Decision string                 `json:"decision"`
	Person   map[string]interface{} `json:"person"`
	Document map[string]interface{} `json:"document"`
}

type veriffDecisionResponse struct {
	Status       string         `json:"status"`
	Verification VeriffDecision `json:"verification"`
}

// VeriffImage is one media entry for a session.
type VeriffImage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type veriffMediaResponse struct {
	Status string        `json:"status"`
	Images []VeriffImage `json:"images"`
}

// CreateSession creates a hosted verification session. vendorData is the
// internal correlation token echoed back on the decision webhook.
func (v *VeriffClient) CreateSession(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error) {
	payload := map[string]interface{}{
		"verification": map[string]interface{}{
			"person":     person,
			"vendorData": vendorData,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/sessions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-auth-client", v.apiKey)

	var parsed veriffSessionResponse
	if err := v.do(req, &parsed); err != nil {
		return nil, fmt.Errorf("failed to create Veriff verification session: %w", err)
	}

	return &parsed.Verification, nil
}

// GetSessionDecision retrieves the decision for a session
func (v *VeriffClient) GetSessionDecision(ctx context.Context, sessionID string) (*VeriffDecision, error) {
	req, err := v.signedGet(ctx, v.baseURL+"/sessions/"+sessionID+"/decision", sessionID)
	if err != nil {
		return nil, err
	}

	var parsed veriffDecisionResponse
	if err := v.do(req, &parsed); err != nil {
		return nil, fmt.Errorf("failed to retrieve Veriff verification decision: %w", err)
	}

	return &parsed.Verification, nil
}

// GetSessionPerson retrieves the extracted person data for a session.
// Unlike the decision person block this is populated as soon as the
// documents are read, even before a decision exists.
func (v *VeriffClient) GetSessionPerson(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	req, err := v.signedGet(ctx, v.baseURL+"/sessions/"+sessionID+"/person", sessionID)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Status string                 `json:"status"`
		Person map[string]interface{} `json:"person"`
	}
	if err := v.do(req, &parsed); err != nil {
		return nil, fmt.Errorf("failed to retrieve Veriff verification person: %w", err)
	}

	return parsed.Person, nil
}

// GetSessionMedia lists the captured images for a session
func (v *VeriffClient) GetSessionMedia(ctx context.Context, sessionID string) ([]VeriffImage, error) {
	req, err := v.signedGet(ctx, v.baseURL+"/sessions/"+sessionID+"/media", sessionID)
	if err != nil {
		return nil, err
	}

	var parsed veriffMediaResponse
	if err := v.do(req, &parsed); err != nil {
		return nil, fmt.Errorf("failed to retrieve Veriff verification media: %w", err)
	}

	return parsed.Images, nil
}

// GetSessionImage downloads one raw image by its media id and URL
func (v *VeriffClient) GetSessionImage(ctx context.Context, imageID, imageURL string) ([]byte, error) {
	req, err := v.signedGet(ctx, imageURL, imageID)
	if err != nil {
		return nil, err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve Veriff verification image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("veriff API error: status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// signedGet builds a GET request with the per-resource HMAC signature
// Veriff requires on retrieval endpoints.
func (v *VeriffClient) signedGet(ctx context.Context, url, resource string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-auth-client", v.apiKey)
	req.Header.Set("x-hmac-signature", v.GenerateSignature([]byte(resource)))
	return req, nil
}

func (v *VeriffClient) do(req *http.Request, out interface{}) error {
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("veriff API error: status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GenerateSignature computes the lower-cased hex HMAC-SHA256 digest of
// payload with the shared secret.
func (v *VeriffClient) GenerateSignature(payload []byte) string {
	h := hmac.New(sha256.New, []byte(v.secretKey))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// IsSignatureValid verifies an inbound webhook signature over the raw,
// unparsed request body. The body must not be re-serialized before this
// check: key order or whitespace changes would break the digest. The
// comparison is constant time.
func (v *VeriffClient) IsSignatureValid(rawBody []byte, signature string) bool {
	expected := v.GenerateSignature(rawBody)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
