package database

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

const maxErrorBodyBytes = 32 << 10 // keep store error messages bounded

// SupabaseConfig holds connection settings for the hosted store.
type SupabaseConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// SupabaseStore implements RowStore against the Supabase PostgREST API.
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseStore creates a Supabase-backed row store.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &SupabaseStore{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

func (s *SupabaseStore) Select(ctx context.Context, table string, q Query) ([]byte, error) {
	params := url.Values{}
	if q.Columns != "" {
		params.Set("select", q.Columns)
	}
	for _, f := range q.Filters {
		params.Add(f.Column, f.Op+"."+formatValue(f.Value))
	}
	if len(q.Order) > 0 {
		orders := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "desc"
			if o.Ascending {
				dir = "asc"
			}
			orders[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(orders, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	return s.request(ctx, http.MethodGet, table, params, nil, nil)
}

func (s *SupabaseStore) Insert(ctx context.Context, table string, rows any) ([]byte, error) {
	return s.request(ctx, http.MethodPost, table, nil, rows, map[string]string{
		"Prefer": "return=representation",
	})
}

func (s *SupabaseStore) Upsert(ctx context.Context, table string, row any, onConflict string) ([]byte, error) {
	params := url.Values{}
	if onConflict != "" {
		params.Set("on_conflict", onConflict)
	}
	return s.request(ctx, http.MethodPost, table, params, row, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=representation",
	})
}

func (s *SupabaseStore) Update(ctx context.Context, table string, filters []Filter, changes map[string]any) ([]byte, error) {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, f.Op+"."+formatValue(f.Value))
	}
	return s.request(ctx, http.MethodPatch, table, params, changes, map[string]string{
		"Prefer": "return=representation",
	})
}

func (s *SupabaseStore) Delete(ctx context.Context, table string, filters []Filter) ([]byte, error) {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, f.Op+"."+formatValue(f.Value))
	}
	return s.request(ctx, http.MethodDelete, table, params, nil, map[string]string{
		"Prefer": "return=representation",
	})
}

func (s *SupabaseStore) Count(ctx context.Context, table string, filters []Filter) (int, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("limit", "1")
	for _, f := range filters {
		params.Add(f.Column, f.Op+"."+formatValue(f.Value))
	}

	reqURL := s.baseURL + "/rest/v1/" + url.PathEscape(table) + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, s.storeError(resp)
	}

	// Content-Range is "<from>-<to>/<total>".
	parts := strings.Split(resp.Header.Get("Content-Range"), "/")
	if len(parts) != 2 {
		return 0, &StoreError{Status: resp.StatusCode, Message: "missing content range"}
	}
	total, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, &StoreError{Status: resp.StatusCode, Message: "bad content range: " + parts[1]}
	}
	return total, nil
}

func (s *SupabaseStore) request(ctx context.Context, method, table string, params url.Values, body any, headers map[string]string) ([]byte, error) {
	reqURL := s.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, s.storeError(resp)
	}

	return io.ReadAll(resp.Body)
}

func (s *SupabaseStore) setHeaders(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
}

func (s *SupabaseStore) storeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &StoreError{Status: resp.StatusCode, Code: payload.Code, Message: msg}
}
