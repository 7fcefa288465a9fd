package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/chrismgala/verifly/internal/config"
)

func newTestStripeClient() *StripeClient {
	return NewStripeClient(&config.Config{
		StripeAPIURL:        "http://unused",
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_test",
	})
}

const stripeEventBody = `{
	"id": "evt_123",
	"type": "identity.verification_session.verified",
	"data": {
		"object": {
			"id": "vs_abc",
			"status": "verified",
			"metadata": {"correlation_token": "token-123"}
		}
	}
}`

func TestStripeConstructEvent(t *testing.T) {
	client := newTestStripeClient()
	body := []byte(stripeEventBody)

	header := client.SignPayload(body, time.Now())
	event, err := client.ConstructEvent(body, header)
	if err != nil {
		t.Fatalf("ConstructEvent failed: %v", err)
	}
	if event.Type != "identity.verification_session.verified" {
		t.Errorf("event type = %q", event.Type)
	}
	if event.Data.Object.ID != "vs_abc" {
		t.Errorf("session id = %q, want vs_abc", event.Data.Object.ID)
	}
	if event.Data.Object.Metadata["correlation_token"] != "token-123" {
		t.Errorf("metadata = %v", event.Data.Object.Metadata)
	}
}

func TestStripeConstructEventTamperedBody(t *testing.T) {
	client := newTestStripeClient()
	body := []byte(stripeEventBody)

	header := client.SignPayload(body, time.Now())
	tampered := []byte(`{"id":"evt_999","type":"identity.verification_session.verified"}`)
	if _, err := client.ConstructEvent(tampered, header); err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestStripeConstructEventWrongSecret(t *testing.T) {
	client := newTestStripeClient()
	other := NewStripeClient(&config.Config{StripeWebhookSecret: "whsec_other"})
	body := []byte(stripeEventBody)

	header := other.SignPayload(body, time.Now())
	if _, err := client.ConstructEvent(body, header); err == nil {
		t.Fatal("expected signature from a different secret to fail")
	}
}

func TestStripeConstructEventOutsideTolerance(t *testing.T) {
	client := newTestStripeClient()
	body := []byte(stripeEventBody)

	signedAt := time.Now()
	header := client.SignPayload(body, signedAt)

	client.now = func() time.Time { return signedAt.Add(stripeSignatureTolerance + time.Minute) }
	if _, err := client.ConstructEvent(body, header); err == nil {
		t.Fatal("expected stale signature to be rejected")
	}

	client.now = func() time.Time { return signedAt.Add(stripeSignatureTolerance - time.Minute) }
	if _, err := client.ConstructEvent(body, header); err != nil {
		t.Fatalf("expected signature inside tolerance to verify: %v", err)
	}
}

func TestStripeConstructEventMalformedHeader(t *testing.T) {
	client := newTestStripeClient()
	body := []byte(stripeEventBody)

	cases := []string{
		"",
		"v1=deadbeef",
		fmt.Sprintf("t=%d", time.Now().Unix()),
		"t=notanumber,v1=deadbeef",
	}
	for _, header := range cases {
		if _, err := client.ConstructEvent(body, header); err == nil {
			t.Errorf("expected header %q to be rejected", header)
		}
	}
}
