package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Service is the remote API surface the sync engine needs. Client implements
// it; tests substitute a mock.
type Service interface {
	// AboutUser verifies connectivity and returns the authenticated user's
	// email address.
	AboutUser(ctx context.Context) (string, error)

	// ListPages drains every page of a list endpoint.
	ListPages(ctx context.Context, path string, query url.Values) ([]Object, error)

	// Create POSTs to an endpoint. A nil payload sends an empty body, used by
	// the currency enable/disable/default actions.
	Create(ctx context.Context, path string, payload map[string]any) (Object, error)

	// Update PUTs a payload to an endpoint.
	Update(ctx context.Context, path string, payload map[string]any) (Object, error)
}

// Client is the HTTP implementation of Service. Paths are relative to
// {base}/api/v1/.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Service = (*Client)(nil)

// NewClient creates a client for the instance at baseURL authenticating with
// the given personal access token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: time.Minute},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	u := c.baseURL + "/api/v1/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("firefly: encoding %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("firefly: %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firefly: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return fmt.Errorf("firefly: %s %s: %w", method, path, apiErr)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("firefly: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// AboutUser implements Service.
func (c *Client) AboutUser(ctx context.Context) (string, error) {
	var resp objectResponse
	if err := c.do(ctx, http.MethodGet, "about/user", nil, nil, &resp); err != nil {
		return "", err
	}
	email, _ := resp.Data.Attributes["email"].(string)
	return email, nil
}

// ListPages implements Service.
func (c *Client) ListPages(ctx context.Context, path string, query url.Values) ([]Object, error) {
	var all []Object
	for page := 1; ; page++ {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(page))

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if resp.Meta.Pagination.CurrentPage >= resp.Meta.Pagination.TotalPages {
			return all, nil
		}
	}
}

// Create implements Service.
func (c *Client) Create(ctx context.Context, path string, payload map[string]any) (Object, error) {
	var resp objectResponse
	if err := c.do(ctx, http.MethodPost, path, nil, payloadOrNil(payload), &resp); err != nil {
		return Object{}, err
	}
	return resp.Data, nil
}

// Update implements Service.
func (c *Client) Update(ctx context.Context, path string, payload map[string]any) (Object, error) {
	var resp objectResponse
	if err := c.do(ctx, http.MethodPut, path, nil, payloadOrNil(payload), &resp); err != nil {
		return Object{}, err
	}
	return resp.Data, nil
}

// payloadOrNil keeps a nil map from being marshalled as the JSON null body.
func payloadOrNil(payload map[string]any) any {
	if payload == nil {
		return nil
	}
	return payload
}
