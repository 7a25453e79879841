package vectorstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

// HTTPClient is a Client backed by a JSON-over-HTTP vector-database
// server, grounded on antfly/client.go's sendRequest/status-code pattern.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient constructs an HTTPClient against baseURL. httpClient may
// be nil, in which case http.DefaultClient is used; pass a client with a
// Timeout to put a deadline on every store round trip.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// WithAPIKey returns c configured to send key as a bearer token on every
// request. An empty key leaves requests unauthenticated.
func (c *HTTPClient) WithAPIKey(key string) *HTTPClient {
	c.apiKey = key
	return c
}

func (c *HTTPClient) sendRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func (c *HTTPClient) collectionURL(h Handle, parts ...string) string {
	segs := append([]string{c.baseURL, "collection", h.Name}, parts...)
	joined, _ := url.JoinPath(segs[0], segs[1:]...)
	return joined
}

// classifyStatus maps an HTTP status (and, where present, a structured
// error body) to the closed error taxonomy.
func classifyStatus(status int, body []byte) *UpsertError {
	var payload struct {
		Error        string   `json:"error"`
		DuplicateIDs []string `json:"duplicate_ids"`
	}
	_ = sonic.Unmarshal(body, &payload)

	msg := payload.Error
	if msg == "" {
		msg = string(body)
	}

	switch {
	case status == http.StatusConflict || len(payload.DuplicateIDs) > 0:
		return &UpsertError{Kind: ErrDuplicateID, DuplicateIDs: payload.DuplicateIDs, Message: msg}
	case status == http.StatusTooManyRequests:
		return &UpsertError{Kind: ErrRateLimited, Message: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &UpsertError{Kind: ErrAuthFailed, Message: msg}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &UpsertError{Kind: ErrInvalidInput, Message: msg}
	case status >= 500 || status == http.StatusServiceUnavailable:
		return &UpsertError{Kind: ErrTransient, Message: msg}
	default:
		return &UpsertError{Kind: ErrTransient, Message: fmt.Sprintf("unexpected status %d: %s", status, msg)}
	}
}

func (c *HTTPClient) GetOrCreateCollection(ctx context.Context, name string) (Handle, error) {
	endpoint, _ := url.JoinPath(c.baseURL, "collection", name)
	body, status, err := c.sendRequest(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return Handle{}, fmt.Errorf("get_or_create_collection %q: %w", name, err)
	}
	if status >= 300 && status != http.StatusConflict {
		return Handle{}, fmt.Errorf("get_or_create_collection %q: %w", name, classifyStatus(status, body))
	}
	return Handle{Name: name}, nil
}

type upsertRequest struct {
	IDs       []string         `json:"ids"`
	Texts     []string         `json:"texts"`
	Metadatas []map[string]any `json:"metadatas"`
}

func (c *HTTPClient) Upsert(ctx context.Context, h Handle, ids, texts []string, metadatas []map[string]any) error {
	reqBody, err := sonic.Marshal(upsertRequest{IDs: ids, Texts: texts, Metadatas: metadatas})
	if err != nil {
		return fmt.Errorf("marshalling upsert request: %w", err)
	}

	endpoint := c.collectionURL(h, "upsert")
	body, status, err := c.sendRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("upsert to %q: %w", h.Name, err)
	}
	if status >= 300 {
		return classifyStatus(status, body)
	}
	return nil
}

func (c *HTTPClient) Delete(ctx context.Context, h Handle, where Filter) error {
	reqBody, err := sonic.Marshal(struct {
		Where Filter `json:"where"`
	}{Where: where})
	if err != nil {
		return fmt.Errorf("marshalling delete request: %w", err)
	}

	endpoint := c.collectionURL(h, "delete")
	body, status, err := c.sendRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("delete from %q: %w", h.Name, err)
	}
	if status >= 300 {
		return classifyStatus(status, body)
	}
	return nil
}

type queryRequest struct {
	Texts    []string `json:"texts"`
	NResults int      `json:"n_results"`
	Where    Filter   `json:"where,omitempty"`
}

func (c *HTTPClient) Query(ctx context.Context, h Handle, texts []string, nResults int, where Filter) (*QueryResult, error) {
	reqBody, err := sonic.Marshal(queryRequest{Texts: texts, NResults: nResults, Where: where})
	if err != nil {
		return nil, fmt.Errorf("marshalling query request: %w", err)
	}

	endpoint := c.collectionURL(h, "query")
	body, status, err := c.sendRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", h.Name, err)
	}
	if status >= 300 {
		return nil, classifyStatus(status, body)
	}

	var result QueryResult
	if err := sonic.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing query response from %q: %w", h.Name, err)
	}
	return &result, nil
}

func (c *HTTPClient) Get(ctx context.Context, h Handle, ids []string, where Filter, limit, offset int) (*GetResult, error) {
	reqBody, err := sonic.Marshal(struct {
		IDs    []string `json:"ids,omitempty"`
		Where  Filter   `json:"where,omitempty"`
		Limit  int      `json:"limit,omitempty"`
		Offset int      `json:"offset,omitempty"`
	}{IDs: ids, Where: where, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("marshalling get request: %w", err)
	}

	endpoint := c.collectionURL(h, "get")
	body, status, err := c.sendRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("get from %q: %w", h.Name, err)
	}
	if status >= 300 {
		return nil, classifyStatus(status, body)
	}

	var result GetResult
	if err := sonic.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing get response from %q: %w", h.Name, err)
	}
	return &result, nil
}

func (c *HTTPClient) Count(ctx context.Context, h Handle, where Filter) (int, error) {
	reqBody, err := sonic.Marshal(struct {
		Where Filter `json:"where,omitempty"`
	}{Where: where})
	if err != nil {
		return 0, fmt.Errorf("marshalling count request: %w", err)
	}

	endpoint := c.collectionURL(h, "count")
	body, status, err := c.sendRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("count on %q: %w", h.Name, err)
	}
	if status >= 300 {
		return 0, classifyStatus(status, body)
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := sonic.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("parsing count response from %q: %w", h.Name, err)
	}
	return result.Count, nil
}

var _ Client = (*HTTPClient)(nil)
