// Package testutil provides testing utilities for the listing API client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ListingPath is the endpoint served by MockListingAPI.
const ListingPath = "/getallfeaturetheme"

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockListingAPI is a configurable listing server for testing. By default
// every query id has Total generated posts.
type MockListingAPI struct {
	server *httptest.Server

	mu        sync.RWMutex
	total     map[string]int
	queued    []MockResponse
	headers   map[string]string
	requests  []http.Header
	lastQuery map[string]string
}

// NewMockListingAPI starts a mock server where every query id has total
// posts unless SetTotal says otherwise.
func NewMockListingAPI(total int) *MockListingAPI {
	m := &MockListingAPI{
		total: map[string]int{"": total},
		headers: map[string]string{
			"X-RateLimit-Remaining": "100",
			"X-RateLimit-Reset":     "60",
		},
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockListingAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockListingAPI) Close() {
	m.server.Close()
}

// SetTotal sets the number of posts available for query id.
func (m *MockListingAPI) SetTotal(id string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total[id] = total
}

// SetHeader sets a header sent with every generated response.
func (m *MockListingAPI) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// Enqueue makes the next requests answer with resp, in order, before
// normal pages are served again.
func (m *MockListingAPI) Enqueue(resp ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, resp...)
}

// RequestCount returns the number of requests served.
func (m *MockListingAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequestHeader returns the headers of the latest request.
func (m *MockListingAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// LastQuery returns the id, page and pcount parameters of the latest request.
func (m *MockListingAPI) LastQuery() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (m *MockListingAPI) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	m.mu.Lock()
	m.requests = append(m.requests, r.Header.Clone())
	m.lastQuery = map[string]string{
		"id":     q.Get("id"),
		"page":   q.Get("page"),
		"pcount": q.Get("pcount"),
	}
	var canned *MockResponse
	if len(m.queued) > 0 {
		canned = &m.queued[0]
		m.queued = m.queued[1:]
	}
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	total, ok := m.total[q.Get("id")]
	if !ok {
		total = m.total[""]
	}
	m.mu.Unlock()

	if canned != nil {
		writeResponse(w, *canned)
		return
	}

	if r.URL.Path != ListingPath {
		http.NotFound(w, r)
		return
	}

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 0 {
		http.Error(w, `{"error": "bad page"}`, http.StatusBadRequest)
		return
	}
	count, err := strconv.Atoi(q.Get("pcount"))
	if err != nil || count <= 0 {
		http.Error(w, `{"error": "bad pcount"}`, http.StatusBadRequest)
		return
	}

	headers["Content-Type"] = "application/json; charset=utf-8"
	writeResponse(w, MockResponse{
		StatusCode: http.StatusOK,
		Body:       ListingBody(q.Get("id"), page, count, total),
		Headers:    headers,
	})
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

type mockPost struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Thumbnail  string `json:"thumbnail"`
	Author     string `json:"author"`
	Score      int    `json:"score"`
	CreatedUTC int64  `json:"created_utc"`
}

type mockChild struct {
	Data mockPost `json:"data"`
}

type mockListing struct {
	Data struct {
		Children []mockChild `json:"children"`
		After    *int        `json:"after"`
		Before   *int        `json:"before"`
	} `json:"data"`
}

// PostID is the id MockListingAPI gives to the n-th post (from 1) of query id.
func PostID(id string, n int) string {
	return fmt.Sprintf("%s-%d", id, n)
}

// ListingBody renders page of a query with total posts, count per page.
func ListingBody(id string, page, count, total int) string {
	var body mockListing
	body.Data.Children = []mockChild{}

	first := page*count + 1
	for n := first; n < first+count && n <= total; n++ {
		body.Data.Children = append(body.Data.Children, mockChild{Data: mockPost{
			ID:         PostID(id, n),
			Title:      fmt.Sprintf("Post %d", n),
			URL:        fmt.Sprintf("https://example.com/%s/%d", id, n),
			Thumbnail:  fmt.Sprintf("https://example.com/%s/%d/thumb.jpg", id, n),
			Author:     "mock",
			Score:      total - n,
			CreatedUTC: 1700000000 + int64(n),
		}})
	}
	if (page+1)*count < total {
		next := page + 1
		body.Data.After = &next
	}
	if page > 0 {
		prev := page - 1
		body.Data.Before = &prev
	}

	out, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(out)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "95",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not a listing.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data": [`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
