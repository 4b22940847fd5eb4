package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPull_RequestShape(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(PullResponse{Count: 0})
	}))
	defer srv.Close()

	c := New(srv.URL, "key123", "dev1")
	since := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := c.Pull(context.Background(), PullRequest{
		Endpoint:   "products",
		Since:      since,
		Page:       2,
		PageSize:   1000,
		Order:      "asc",
		CompanyID:  "co1",
		LocationID: "loc9",
	})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}

	if gotPath != "/v1/sync/products" {
		t.Fatalf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer key123" {
		t.Fatalf("auth header: got %q", gotAuth)
	}
	if gotQuery["since"] != "2025-01-02T03:04:05Z" {
		t.Fatalf("since: got %q", gotQuery["since"])
	}
	if gotQuery["page"] != "2" || gotQuery["page_size"] != "1000" {
		t.Fatalf("paging: got page=%q page_size=%q", gotQuery["page"], gotQuery["page_size"])
	}
	if gotQuery["company_id"] != "co1" || gotQuery["location_id"] != "loc9" {
		t.Fatalf("scope: got %v", gotQuery)
	}
}

func TestPull_EpochOmitsSince(t *testing.T) {
	var hasSince bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSince = r.URL.Query().Has("since")
		json.NewEncoder(w).Encode(PullResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "dev1")
	if _, err := c.Pull(context.Background(), PullRequest{Endpoint: "products", Page: 1, PageSize: 10}); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if hasSince {
		t.Fatal("zero watermark must not send a since filter")
	}
}

func TestPush_Acks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sync/orders/push" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		var req PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.DeviceID != "dev1" {
			t.Errorf("device id: got %q", req.DeviceID)
		}
		accepted := make([]string, 0, len(req.Records))
		for _, rec := range req.Records {
			accepted = append(accepted, rec.ID)
		}
		json.NewEncoder(w).Encode(PushResponse{Accepted: accepted})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "dev1")
	resp, err := c.Push(context.Background(), "orders", []Record{
		{ID: "o1", UpdatedAt: time.Now(), Data: json.RawMessage(`{}`)},
		{ID: "o2", UpdatedAt: time.Now(), Data: json.RawMessage(`{}`)},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(resp.Accepted) != 2 {
		t.Fatalf("accepted: got %v", resp.Accepted)
	}
}

func TestDo_UnauthorizedSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": "bad key"})
	}))
	defer srv.Close()

	c := New(srv.URL, "bad", "dev1")
	_, err := c.Pull(context.Background(), PullRequest{Endpoint: "products", Page: 1, PageSize: 10})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error: got %v, want ErrUnauthorized", err)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(PullResponse{Count: 1})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "dev1")
	resp, err := c.Pull(context.Background(), PullRequest{Endpoint: "taxes", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: got %d, want 2", calls)
	}
	if resp.Count != 1 {
		t.Fatalf("count: got %d", resp.Count)
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"code": "bad_request", "message": "nope"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "dev1")
	_, err := c.Pull(context.Background(), PullRequest{Endpoint: "taxes", Page: 1, PageSize: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried: got %d calls", calls)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "dev1")
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status: got %q", resp.Status)
	}
}
