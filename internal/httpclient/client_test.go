package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

type headerProvider struct{ value string }

func (p headerProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	req.Header.Set("Authorization", p.value)
	return nil
}

func TestNewClientPoolSizedToBatch(t *testing.T) {
	client := NewClient(10*time.Second, 25)
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("client transport is not *http.Transport")
	}
	if transport.MaxIdleConns != 25 || transport.MaxIdleConnsPerHost != 25 {
		t.Fatalf("pool = %d/%d, want 25/25", transport.MaxIdleConns, transport.MaxIdleConnsPerHost)
	}
	if client.Timeout != 10*time.Second {
		t.Fatalf("timeout = %s, want 10s", client.Timeout)
	}
}

func TestNewClientDefensiveDefaults(t *testing.T) {
	client := NewClient(-time.Second, 0)
	if client.Timeout != 0 {
		t.Fatalf("negative timeout should collapse to 0, got %s", client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.MaxIdleConns != 1 {
		t.Fatalf("zero pool size should collapse to 1, got %d", transport.MaxIdleConns)
	}
}

func TestBuildRequestEncodesParams(t *testing.T) {
	params := map[string]any{"user": "alice", "iid": "01ABC"}
	req, err := BuildRequest(context.Background(), "POST", "http://localhost/login", params, nil)
	if err != nil {
		t.Fatalf("BuildRequest error = %v", err)
	}
	if req.Method != "POST" {
		t.Fatalf("method = %q, want POST", req.Method)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["user"] != "alice" || body["iid"] != "01ABC" {
		t.Fatalf("body = %v", body)
	}
}

func TestBuildRequestInjectsAuth(t *testing.T) {
	req, err := BuildRequest(context.Background(), "GET", "http://localhost/", nil, headerProvider{value: "Bearer tok"})
	if err != nil {
		t.Fatalf("BuildRequest error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("Authorization = %q, want Bearer tok", got)
	}
}
