package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chrismgala/verifly/internal/config"
)

func newTestShopifyClient(endpoint string) *ShopifyClient {
	client := NewShopifyClient(&config.Config{
		ShopifyAdminToken: "admin-token",
		ShopifyAPIVersion: "2024-01",
	})
	client.endpoint = endpoint
	return client
}

func decodeGraphQL(t *testing.T, r *http.Request) graphqlRequest {
	t.Helper()
	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("failed to decode GraphQL request: %v", err)
	}
	return req
}

func TestShopifyAddOrderTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "admin-token" {
			t.Error("missing access token header")
		}
		req := decodeGraphQL(t, r)
		if req.Variables["id"] != "gid://shopify/Order/5001" {
			t.Errorf("order gid = %v", req.Variables["id"])
		}
		w.Write([]byte(`{"data":{"tagsAdd":{"userErrors":[]}}}`))
	}))
	defer server.Close()

	client := newTestShopifyClient(server.URL)
	err := client.AddOrderTags(context.Background(), "teststore.myshopify.com", 5001, []string{OrderVerifiedTag})
	if err != nil {
		t.Fatalf("AddOrderTags failed: %v", err)
	}
}

func TestShopifyAddOrderTagsUserError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"tagsAdd":{"userErrors":[{"message":"Order does not exist"}]}}}`))
	}))
	defer server.Close()

	client := newTestShopifyClient(server.URL)
	err := client.AddOrderTags(context.Background(), "teststore.myshopify.com", 5001, []string{OrderVerifiedTag})
	if err == nil {
		t.Fatal("expected userErrors to surface as an error")
	}
}

func TestShopifyCreateUsageRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeGraphQL(t, r)
		if req.Variables["subscriptionLineItemId"] != "line-1" {
			t.Errorf("line item = %v", req.Variables["subscriptionLineItemId"])
		}
		w.Write([]byte(`{"data":{"appUsageRecordCreate":{"appUsageRecord":{"id":"gid://shopify/AppUsageRecord/1"},"userErrors":[]}}}`))
	}))
	defer server.Close()

	client := newTestShopifyClient(server.URL)
	err := client.CreateUsageRecord(context.Background(), "teststore.myshopify.com",
		"line-1", "Charge of $5.00 for 10 verifications in July", 5.00)
	if err != nil {
		t.Fatalf("CreateUsageRecord failed: %v", err)
	}
}

func TestShopifyFetchProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"products":{"edges":[
			{"node":{"id":"gid://shopify/Product/111","title":"Whiskey","handle":"whiskey","status":"ACTIVE","tags":["spirits","21+"],
				"variants":{"edges":[{"node":{"id":"gid://shopify/ProductVariant/222","title":"750ml"}}]}}},
			{"node":{"id":"gid://shopify/Product/333","title":"Draft","handle":"draft","status":"DRAFT","tags":[],
				"variants":{"edges":[]}}}
		]}}}`))
	}))
	defer server.Close()

	client := newTestShopifyClient(server.URL)
	products, err := client.FetchProducts(context.Background(), "teststore.myshopify.com", 50)
	if err != nil {
		t.Fatalf("FetchProducts failed: %v", err)
	}

	// Non-ACTIVE products are dropped.
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1", len(products))
	}
	p := products[0]
	if p.ID != 111 {
		t.Errorf("product id = %d, want 111", p.ID)
	}
	if p.Tags != "spirits, 21+" {
		t.Errorf("tags = %q", p.Tags)
	}
	if len(p.Variants) != 1 || p.Variants[0].ID != 222 {
		t.Errorf("variants = %+v", p.Variants)
	}
}
