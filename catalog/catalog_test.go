package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeGithub serves canned pages keyed by the request's `after` cursor and
// records every request it saw.
type fakeGithub struct {
	mu      sync.Mutex
	pages   map[string]string // "" key is the first page
	cursors []string
	auths   []string
	firsts  []float64
}

func (f *fakeGithub) handler(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cursor := ""
	if after, ok := req.Variables["after"].(string); ok {
		cursor = after
	}

	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	f.auths = append(f.auths, r.Header.Get("Authorization"))
	if first, ok := req.Variables["first"].(float64); ok {
		f.firsts = append(f.firsts, first)
	}
	f.mu.Unlock()

	body, ok := f.pages[cursor]
	if !ok {
		http.Error(w, fmt.Sprintf("no page for cursor %q", cursor), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func page(totalCount int, endCursor string, hasNextPage bool, nodes string) string {
	return fmt.Sprintf(`{
		"data": {
			"viewer": {
				"repositories": {
					"totalCount": %d,
					"pageInfo": {"endCursor": %q, "hasNextPage": %t},
					"nodes": [%s]
				}
			}
		}
	}`, totalCount, endCursor, hasNextPage, nodes)
}

func newTestClient(t *testing.T, endpoint string, conf Config) *Client {
	t.Helper()
	conf.Endpoint = endpoint
	client, err := NewClient(t.Context(), "test-token", conf, testLog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestList_pagination(t *testing.T) {
	fake := &fakeGithub{pages: map[string]string{
		"":   page(5, "c1", true, `{"name": "alpha", "url": "https://github.com/o/alpha"}, {"name": "beta", "url": "https://github.com/o/beta"}`),
		"c1": page(5, "c2", true, `null, {"name": "gamma", "url": "https://github.com/o/gamma"}`),
		"c2": page(5, "c2", false, `{"name": "delta", "url": "https://github.com/o/delta"}, {"name": "epsilon", "url": "https://github.com/o/epsilon"}`),
	}}
	ts := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer ts.Close()

	client := newTestClient(t, ts.URL, Config{})

	got, err := client.List(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// null node on the second page is skipped, order preserved
	want := []Repo{
		{Name: "alpha", URL: "https://github.com/o/alpha"},
		{Name: "beta", URL: "https://github.com/o/beta"},
		{Name: "gamma", URL: "https://github.com/o/gamma"},
		{Name: "delta", URL: "https://github.com/o/delta"},
		{Name: "epsilon", URL: "https://github.com/o/epsilon"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"", "c1", "c2"}, fake.cursors); diff != "" {
		t.Errorf("cursors mismatch (-want +got):\n%s", diff)
	}
	for _, first := range fake.firsts {
		if first != pageSize {
			t.Errorf("page size requested = %v, want %v", first, pageSize)
		}
	}
	for _, auth := range fake.auths {
		if auth != "Bearer test-token" {
			t.Errorf("authorization header = %q, want %q", auth, "Bearer test-token")
		}
	}
}

func TestList_empty(t *testing.T) {
	fake := &fakeGithub{pages: map[string]string{
		"": page(0, "", false, ""),
	}}
	ts := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer ts.Close()

	client := newTestClient(t, ts.URL, Config{})

	got, err := client.List(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

func TestList_queryError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": null, "errors": [{"message": "Bad credentials"}, {"message": "try again"}]}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, Config{})

	_, err := client.List(t.Context())
	var qErr *QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected query error, got: %v", err)
	}
	if diff := cmp.Diff([]string{"Bad credentials", "try again"}, qErr.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestList_emptyEnvelope(t *testing.T) {
	// a 200 whose body decodes but carries no repository connection must
	// not read as an empty catalog
	for _, body := range []string{`{}`, `{"data": {}}`, `{"data": {"viewer": {}}}`} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		}))

		client := newTestClient(t, ts.URL, Config{})

		_, err := client.List(t.Context())
		var tErr *TransportError
		if !errors.As(err, &tErr) {
			t.Errorf("body %q: expected transport error, got: %v", body, err)
		}
		ts.Close()
	}
}

func TestList_transportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no graphql here", http.StatusBadGateway)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, Config{})

	_, err := client.List(t.Context())
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected transport error, got: %v", err)
	}
	if tErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status code = %d, want %d", tErr.StatusCode, http.StatusBadGateway)
	}
}

func TestList_unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := ts.URL
	ts.Close()

	client := newTestClient(t, endpoint, Config{})

	_, err := client.List(t.Context())
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected transport error, got: %v", err)
	}
	if tErr.Unwrap() == nil {
		t.Error("expected underlying error to be set")
	}
}

func TestList_nonTerminatingPagination(t *testing.T) {
	fake := &fakeGithub{pages: map[string]string{
		"": page(10, "", true, `{"name": "alpha", "url": "https://github.com/o/alpha"}`),
	}}
	ts := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer ts.Close()

	client := newTestClient(t, ts.URL, Config{})

	if _, err := client.List(t.Context()); err == nil {
		t.Fatal("expected error for next page without cursor")
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		conf         Config
		wantAffil    []string
		wantEndpoint string
		wantErr      bool
	}{
		{"defaults", "tok", Config{}, []string{"OWNER"}, DefaultEndpoint, false},
		{"lowercase-affiliations", "tok",
			Config{Affiliations: []string{"owner", "collaborator"}},
			[]string{"OWNER", "COLLABORATOR"}, DefaultEndpoint, false},
		{"all-affiliations", "tok",
			Config{Affiliations: []string{"OWNER", "COLLABORATOR", "ORGANIZATION_MEMBER"}},
			[]string{"OWNER", "COLLABORATOR", "ORGANIZATION_MEMBER"}, DefaultEndpoint, false},
		{"custom-endpoint", "tok",
			Config{Endpoint: "https://ghe.example.com/api/graphql"},
			[]string{"OWNER"}, "https://ghe.example.com/api/graphql", false},
		{"missing-token", "", Config{}, nil, "", true},
		{"unknown-affiliation", "tok", Config{Affiliations: []string{"STARGAZER"}}, nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(t.Context(), tt.token, tt.conf, testLog)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tt.wantAffil, got.affiliations); diff != "" {
				t.Errorf("affiliations mismatch (-want +got):\n%s", diff)
			}
			if got.endpoint != tt.wantEndpoint {
				t.Errorf("endpoint = %q, want %q", got.endpoint, tt.wantEndpoint)
			}
		})
	}
}
