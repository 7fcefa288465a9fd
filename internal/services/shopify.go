package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chrismgala/verifly/internal/config"
)

// OrderVerifiedTag is applied to commerce orders once the verification
// is approved.
const OrderVerifiedTag = "Verifly Verified"

// ShopifyClient is a thin wrapper over the Shopify Admin GraphQL API.
type ShopifyClient struct {
	token      string
	apiVersion string
	httpClient *http.Client

	// endpoint overrides the per-shop admin URL; tests point it at a
	// local server.
	endpoint string
}

// NewShopifyClient creates a new Shopify Admin API client
func NewShopifyClient(cfg *config.Config) *ShopifyClient {
	return &ShopifyClient{
		token:      cfg.ShopifyAdminToken,
		apiVersion: cfg.ShopifyAPIVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *ShopifyClient) adminURL(shopDomain string) string {
	if s.endpoint != "" {
		return s.endpoint
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopDomain, s.apiVersion)
}

func (s *ShopifyClient) graphql(ctx context.Context, shopDomain, query string, variables map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.adminURL(shopDomain), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Shopify Admin API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("shopify Admin API error: status %d", resp.StatusCode)
	}

	var parsed graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode GraphQL response: %w", err)
	}

	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("shopify GraphQL error: %s", parsed.Errors[0].Message)
	}

	return parsed.Data, nil
}

// AddOrderTags applies tags to an order via the tagsAdd mutation.
func (s *ShopifyClient) AddOrderTags(ctx context.Context, shopDomain string, platformOrderID int64, tags []string) error {
	data, err := s.graphql(ctx, shopDomain,
		`mutation ($id: ID!, $tags: [String!]!) {
			tagsAdd(id: $id, tags: $tags) {
				node {
					id
				}
				userErrors {
					message
				}
			}
		}`,
		map[string]interface{}{
			"id":   fmt.Sprintf("gid://shopify/Order/%d", platformOrderID),
			"tags": tags,
		})
	if err != nil {
		return err
	}

	var result struct {
		TagsAdd struct {
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"tagsAdd"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to decode tagsAdd result: %w", err)
	}
	if len(result.TagsAdd.UserErrors) > 0 {
		return fmt.Errorf("tagsAdd failed: %s", result.TagsAdd.UserErrors[0].Message)
	}

	return nil
}

// CreateUsageRecord posts a metered usage charge against an active usage
// subscription line item.
func (s *ShopifyClient) CreateUsageRecord(ctx context.Context, shopDomain, lineItemID, description string, amount float64) error {
	data, err := s.graphql(ctx, shopDomain,
		`mutation ($description: String!, $price: MoneyInput!, $subscriptionLineItemId: ID!) {
			appUsageRecordCreate(description: $description, price: $price, subscriptionLineItemId: $subscriptionLineItemId) {
				appUsageRecord {
					id
				}
				userErrors {
					message
				}
			}
		}`,
		map[string]interface{}{
			"description": description,
			"price": map[string]interface{}{
				"amount":       fmt.Sprintf("%.2f", amount),
				"currencyCode": "USD",
			},
			"subscriptionLineItemId": lineItemID,
		})
	if err != nil {
		return err
	}

	var result struct {
		AppUsageRecordCreate struct {
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"appUsageRecordCreate"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to decode appUsageRecordCreate result: %w", err)
	}
	if len(result.AppUsageRecordCreate.UserErrors) > 0 {
		return fmt.Errorf("appUsageRecordCreate failed: %s", result.AppUsageRecordCreate.UserErrors[0].Message)
	}

	return nil
}

// ShopifyVariant is one product variant from the Admin API.
type ShopifyVariant struct {
	ID    int64
	Title string
}

// ShopifyProduct is one active product from the Admin API.
type ShopifyProduct struct {
	ID       int64
	Title    string
	Handle   string
	Status   string
	Tags     string
	Variants []ShopifyVariant
}

// FetchProducts lists active products with their variants.
func (s *ShopifyClient) FetchProducts(ctx context.Context, shopDomain string, first int) ([]ShopifyProduct, error) {
	data, err := s.graphql(ctx, shopDomain,
		`query ($first: Int!) {
			products(first: $first) {
				edges {
					node {
						id
						title
						handle
						status
						tags
						variants(first: 10) {
							edges {
								node {
									id
									title
								}
							}
						}
					}
				}
			}
		}`,
		map[string]interface{}{"first": first})
	if err != nil {
		return nil, err
	}

	var result struct {
		Products struct {
			Edges []struct {
				Node struct {
					ID       string   `json:"id"`
					Title    string   `json:"title"`
					Handle   string   `json:"handle"`
					Status   string   `json:"status"`
					Tags     []string `json:"tags"`
					Variants struct {
						Edges []struct {
							Node struct {
								ID    string `json:"id"`
								Title string `json:"title"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"variants"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode products result: %w", err)
	}

	var products []ShopifyProduct
	for _, edge := range result.Products.Edges {
		node := edge.Node
		if node.Status != "ACTIVE" {
			continue
		}

		product := ShopifyProduct{
			ID:     gidToID(node.ID),
			Title:  node.Title,
			Handle: node.Handle,
			Status: node.Status,
			Tags:   strings.Join(node.Tags, ", "),
		}
		for _, v := range node.Variants.Edges {
			product.Variants = append(product.Variants, ShopifyVariant{
				ID:    gidToID(v.Node.ID),
				Title: v.Node.Title,
			})
		}
		products = append(products, product)
	}

	return products, nil
}

// gidToID extracts the numeric id from a GraphQL gid
// (gid://shopify/Product/123456789).
func gidToID(gid string) int64 {
	idx := strings.LastIndex(gid, "/")
	if idx < 0 {
		return 0
	}
	id, _ := strconv.ParseInt(gid[idx+1:], 10, 64)
	return id
}
