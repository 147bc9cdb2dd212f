package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_ErrorIncludesBody(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"peer already exists","code":"peer_conflict"}`))
	}))
	defer s.Close()

	c := NewClient(s.URL)
	_, err := c.AddPeer(context.Background(), "n")
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "peer_conflict" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	got := err.Error()
	if !strings.Contains(got, "400") || !strings.Contains(got, "peer already exists") {
		t.Fatalf("error missing status or message: %q", got)
	}
}

func TestClient_PlainTextError(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer s.Close()

	_, err := NewClient(s.URL).Peers(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad gateway") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_AddPeerSendsJSON(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/add-peer" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req AddPeerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name != "laptop" {
			t.Errorf("bad body: %v %+v", err, req)
		}
		_ = json.NewEncoder(w).Encode(AddPeerResponse{PeerName: "laptop", IPAddress: "10.0.0.2"})
	}))
	defer s.Close()

	resp, err := NewClient(s.URL+"/").AddPeer(context.Background(), "laptop")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if resp.IPAddress != "10.0.0.2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClient_PeerPathEscaped(t *testing.T) {
	t.Parallel()

	var gotPath string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(MessageResponse{Message: "ok"})
	}))
	defer s.Close()

	if _, err := NewClient(s.URL).RemovePeer(context.Background(), "a/b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if gotPath != "/peer/a%2Fb" {
		t.Fatalf("path = %q", gotPath)
	}
}
