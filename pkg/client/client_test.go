package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/netpager/internal/testutil"
	"github.com/Sternrassler/netpager/pkg/pagination"
)

func newTestClient(t *testing.T, baseURL string, retry RetryConfig) *Client {
	t.Helper()

	cfg := DefaultConfig(baseURL, "netpager-test/1.0")
	cfg.Retry = retry
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://api.example.com/v1", "TestApp/1.0"),
		},
		{
			name:     "missing base url",
			config:   DefaultConfig("", "TestApp/1.0"),
			errorMsg: "base url is required",
		},
		{
			name:     "unsupported scheme",
			config:   DefaultConfig("ftp://api.example.com", "TestApp/1.0"),
			errorMsg: `base url must be http or https (got "ftp://api.example.com")`,
		},
		{
			name:     "empty user agent",
			config:   DefaultConfig("https://api.example.com", ""),
			errorMsg: "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg != "" {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("Expected client but got nil")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.com/v1/", UserAgent: "TestApp/1.0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.httpClient.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.httpClient.Timeout)
	}
	if c.config.Retry != DefaultRetryConfig() {
		t.Errorf("Retry = %+v, want defaults", c.config.Retry)
	}
	if got := c.pageURL("cats & dogs", 2, 30); got != "https://api.example.com/v1/getallfeaturetheme?id=cats+%26+dogs&page=2&pcount=30" {
		t.Errorf("pageURL() = %q", got)
	}
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockListingAPI(75)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), NoRetry())

	page, err := c.FetchPage(context.Background(), "cats", 0, 30)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 30 {
		t.Fatalf("len(Items) = %d, want 30", len(page.Items))
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}

	first := page.Items[0]
	if first.ID != testutil.PostID("cats", 1) {
		t.Errorf("first ID = %q, want %q", first.ID, testutil.PostID("cats", 1))
	}
	if first.Title != "Post 1" || first.Author != "mock" || first.Score != 74 || first.CreatedUTC != 1700000001 {
		t.Errorf("first post = %+v", first)
	}
	if first.URL == "" || first.Thumbnail == "" {
		t.Errorf("first post missing links: %+v", first)
	}

	query := mock.LastQuery()
	if query["id"] != "cats" || query["page"] != "0" || query["pcount"] != "30" {
		t.Errorf("query = %v", query)
	}

	header := mock.LastRequestHeader()
	if got := header.Get("User-Agent"); got != "netpager-test/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
}

func TestFetchPage_LastPage(t *testing.T) {
	mock := testutil.NewMockListingAPI(75)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), NoRetry())

	page, err := c.FetchPage(context.Background(), "cats", 2, 30)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 15 {
		t.Errorf("len(Items) = %d, want 15", len(page.Items))
	}
	if page.HasMore {
		t.Error("HasMore = true on the last page")
	}

	page, err = c.FetchPage(context.Background(), "cats", 5, 30)
	if err != nil {
		t.Fatalf("FetchPage() past the end error = %v", err)
	}
	if len(page.Items) != 0 || page.HasMore {
		t.Errorf("page past the end = %+v, want empty without more", page)
	}
}

func TestFetchPage_Failures(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantKind   pagination.FailureKind
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "server error",
			response:   testutil.NewServerErrorResponse(),
			wantKind:   pagination.KindServer,
			wantStatus: 500,
			wantMsg:    "error code: 500",
		},
		{
			name:       "not found",
			response:   testutil.NewNotFoundResponse(),
			wantKind:   pagination.KindServer,
			wantStatus: 404,
			wantMsg:    "error code: 404",
		},
		{
			name:       "rate limited",
			response:   testutil.NewRateLimitResponse(),
			wantKind:   pagination.KindServer,
			wantStatus: 429,
			wantMsg:    "error code: 429",
		},
		{
			name:     "malformed body",
			response: testutil.NewMalformedResponse(),
			wantKind: pagination.KindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockListingAPI(10)
			defer mock.Close()
			mock.Enqueue(tt.response)

			c := newTestClient(t, mock.URL(), NoRetry())
			_, err := c.FetchPage(context.Background(), "cats", 0, 5)

			var fe *pagination.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *pagination.FetchError", err)
			}
			if fe.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", fe.Kind, tt.wantKind)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
			if tt.wantMsg != "" && fe.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", fe.Error(), tt.wantMsg)
			}
			if mock.RequestCount() != 1 {
				t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
			}
		})
	}
}

func TestFetchPage_NetworkFailure(t *testing.T) {
	mock := testutil.NewMockListingAPI(10)
	baseURL := mock.URL()
	mock.Close()

	c := newTestClient(t, baseURL, NoRetry())
	_, err := c.FetchPage(context.Background(), "cats", 0, 5)

	var fe *pagination.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *pagination.FetchError", err)
	}
	if fe.Kind != pagination.KindTransport {
		t.Errorf("Kind = %q, want transport", fe.Kind)
	}
	if fe.Error() == "" || fe.Error() == "unknown error" {
		t.Errorf("Error() = %q, want the transport error text", fe.Error())
	}
}

func TestFetchPage_RetriesServerErrors(t *testing.T) {
	mock := testutil.NewMockListingAPI(10)
	defer mock.Close()
	mock.Enqueue(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL(), fastRetry(3))
	page, err := c.FetchPage(context.Background(), "cats", 0, 5)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 5 {
		t.Errorf("len(Items) = %d, want 5", len(page.Items))
	}
	if mock.RequestCount() != 3 {
		t.Errorf("RequestCount = %d, want 3", mock.RequestCount())
	}
}

func TestFetchPage_RetryExhaustedKeepsStatus(t *testing.T) {
	mock := testutil.NewMockListingAPI(10)
	defer mock.Close()
	mock.Enqueue(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL(), fastRetry(2))
	_, err := c.FetchPage(context.Background(), "cats", 0, 5)

	var fe *pagination.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *pagination.FetchError", err)
	}
	if fe.Kind != pagination.KindServer || fe.StatusCode != 500 {
		t.Errorf("FetchError = %+v, want server 500", fe)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted in the chain", err)
	}
}

func TestFetchPage_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockListingAPI(10)
	defer mock.Close()
	mock.Enqueue(testutil.NewNotFoundResponse())

	c := newTestClient(t, mock.URL(), fastRetry(3))
	if _, err := c.FetchPage(context.Background(), "cats", 0, 5); err == nil {
		t.Fatal("Expected error but got nil")
	}
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
	}
}

func TestFetchPage_AsPagingSource(t *testing.T) {
	mock := testutil.NewMockListingAPI(7)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), NoRetry())
	exec := pagination.ExecutorFunc(func(task func()) { task() })
	f := pagination.NewFetcher[Post](context.Background(), c, "dogs", exec)

	var got []Post
	f.LoadInitial(pagination.InitialParams{RequestedSize: 5}, func(res pagination.LoadResult[Post]) {
		got = append(got, res.Items...)
		if !res.HasNext {
			t.Error("HasNext = false after the first page")
		}
	})
	f.LoadAfter(pagination.AfterParams{Key: 1, RequestedSize: 5}, func(res pagination.LoadResult[Post]) {
		got = append(got, res.Items...)
		if res.HasNext {
			t.Error("HasNext = true after the last page")
		}
	})

	if len(got) != 7 {
		t.Fatalf("loaded %d posts, want 7", len(got))
	}
	if !got[6].Equal(Post{ID: testutil.PostID("dogs", 7)}) {
		t.Errorf("last post = %+v", got[6])
	}
	if f.NetworkState().Get() != pagination.Loaded() {
		t.Errorf("NetworkState = %v, want loaded", f.NetworkState().Get())
	}
}

func TestSetHTTPClient(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", NoRetry())
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("offline")
	})})

	_, err := c.FetchPage(context.Background(), "cats", 0, 5)
	if err == nil {
		t.Fatal("Expected error but got nil")
	}
	var fe *pagination.FetchError
	if !errors.As(err, &fe) || fe.Kind != pagination.KindTransport {
		t.Errorf("error = %v, want transport FetchError", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
