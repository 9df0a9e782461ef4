// Package ledger is the client side of the external accounting system that
// turns a reviewed document into a vendor bill.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Line is one bill line
type Line struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Bill is the payload sent to the ledger. Date is passed through raw;
// the ledger owns locale-aware date parsing.
type Bill struct {
	Vendor    string `json:"vendor"`
	Date      string `json:"date"`
	Reference string `json:"reference"`
	Lines     []Line `json:"lines"`
}

// Client creates bills in the ledger
type Client interface {
	// CreateBill creates a bill and returns the ledger's bill ID
	CreateBill(ctx context.Context, bill Bill) (string, error)
}

// HTTPClient implements Client against a JSON HTTP API
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a ledger client. token is sent as a bearer token
// when set.
func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ledger base URL is required")
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}, nil
}

type createBillResponse struct {
	ID string `json:"id"`
}

// CreateBill posts the bill to <base>/bills
func (c *HTTPClient) CreateBill(ctx context.Context, bill Bill) (string, error) {
	body, err := json.Marshal(bill)
	if err != nil {
		return "", fmt.Errorf("marshaling bill: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bills", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ledger API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ledger API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var out createBillResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("ledger returned an empty bill id")
	}
	return out.ID, nil
}
