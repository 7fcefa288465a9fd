package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chrismgala/verifly/internal/config"
)

// ResendClient sends transactional email through the Resend API.
type ResendClient struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewResendClient creates a new Resend client
func NewResendClient(cfg *config.Config) *ResendClient {
	return &ResendClient{
		baseURL: cfg.ResendAPIURL,
		apiKey:  cfg.ResendAPIKey,
		from:    cfg.ResendFrom,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// EmailRequest represents a Resend email request
type EmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// VerificationEmail carries everything the verification-request template
// needs.
type VerificationEmail struct {
	To           string
	ShopName     string
	CustomerName string
	OrderNumber  string
	URL          string
}

// SendVerificationEmail sends the verification-request email and returns
// the provider email id for correlation on the verification record.
func (r *ResendClient) SendVerificationEmail(ctx context.Context, email VerificationEmail) (string, error) {
	subject := "[Action required] Verify your identity"
	html := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<h2>Verify your identity</h2>
			<p>Hi %s,</p>
			<p>
				Your order %s from %s requires identity verification before it
				can be fulfilled.
			</p>
			<p>
				<a href="%s" target="_blank" style="background-color: #008060; color: white; padding: 12px 24px; border-radius: 6px; text-decoration: none;">Verify Now</a>
			</p>
			<p style="color: #999; font-size: 12px;">
				This verification was requested by %s using Verifly. If you did
				not place this order, please ignore this email.
			</p>
		</div>
	`, email.CustomerName, email.OrderNumber, email.ShopName, email.URL, email.ShopName)

	return r.send(ctx, EmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: subject,
		HTML:    html,
	})
}

// SendTestVerificationEmail sends the merchant-facing test verification
// email.
func (r *ResendClient) SendTestVerificationEmail(ctx context.Context, to, shopName, url string) (string, error) {
	subject := fmt.Sprintf("Test Verification - %s", shopName)
	html := fmt.Sprintf(`
		<h2>Test Identity Verification</h2>
		<p>This is a test verification for your Verifly setup.</p>
		<p>Please complete your identity verification by clicking the link below:</p>
		<a href="%s" target="_blank">Verify Now</a>
		<p>
			This is a test verification sent from %s using Verifly.
		</p>
	`, url, shopName)

	return r.send(ctx, EmailRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
}

// send posts the email via the Resend API
func (r *ResendClient) send(ctx context.Context, req EmailRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("resend API error: status %d", resp.StatusCode)
	}

	var parsed emailResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode email response: %w", err)
	}

	return parsed.ID, nil
}
