package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkerrors "github.com/remedly/sdk/pkg/errors"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err != sdkerrors.ErrMissingEndpoint {
		t.Errorf("New(nil) error = %v, want ErrMissingEndpoint", err)
	}
	if _, err := New(&Config{Endpoint: "http://llm.local"}); err != sdkerrors.ErrMissingAPIKey {
		t.Errorf("New() without key error = %v, want ErrMissingAPIKey", err)
	}
}

func TestGenerateFix(t *testing.T) {
	var gotReq fixRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/fixes" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(fixResponse{
			Patch:      "--- a/package.json\n+++ b/package.json",
			Confidence: 95,
			Rationale:  "Upgrading express resolves known vulnerabilities.",
		})
	}))
	defer server.Close()

	g, err := New(&Config{Endpoint: server.URL, APIKey: "secret", Model: "remedly-fix-1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	fix, err := g.GenerateFix(context.Background(), "Here is a vulnerable dependency.")
	if err != nil {
		t.Fatalf("GenerateFix() error = %v", err)
	}

	if gotReq.Prompt != "Here is a vulnerable dependency." || gotReq.Model != "remedly-fix-1" {
		t.Errorf("request = %+v", gotReq)
	}
	if fix.Confidence != 95 {
		t.Errorf("confidence = %v, want 95", fix.Confidence)
	}
	if fix.Rationale == "" || fix.Content == "" {
		t.Errorf("fix = %+v", fix)
	}
}

func TestGenerateFixNormalizesProbability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fixResponse{Patch: "patch", Confidence: 0.87, Rationale: "r"})
	}))
	defer server.Close()

	g, err := New(&Config{Endpoint: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	fix, err := g.GenerateFix(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateFix() error = %v", err)
	}
	if fix.Confidence != 87 {
		t.Errorf("confidence = %v, want 87", fix.Confidence)
	}
}

func TestGenerateFixRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing patch", body: `{"confidence": 90, "rationale": "r"}`},
		{name: "confidence too high", body: `{"patch": "p", "confidence": 150}`},
		{name: "confidence negative", body: `{"patch": "p", "confidence": -3}`},
		{name: "not json", body: `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g, err := New(&Config{Endpoint: server.URL, APIKey: "secret"})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			_, err = g.GenerateFix(context.Background(), "prompt")
			if err == nil {
				t.Fatal("GenerateFix() should fail")
			}
			if got := sdkerrors.GetKind(err); got != sdkerrors.KindFixGeneration {
				t.Errorf("kind = %v, want fix_generation", got)
			}
		})
	}
}

func TestGenerateFixErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   sdkerrors.Kind
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantKind: sdkerrors.KindAuthentication},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, wantKind: sdkerrors.KindRateLimit},
		{name: "server error", statusCode: http.StatusBadGateway, wantKind: sdkerrors.KindFixGeneration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			g, err := New(&Config{Endpoint: server.URL, APIKey: "secret"})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			_, err = g.GenerateFix(context.Background(), "prompt")
			if got := sdkerrors.GetKind(err); got != tt.wantKind {
				t.Errorf("kind = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestGenerateFixNetworkError(t *testing.T) {
	g, err := New(&Config{Endpoint: "http://127.0.0.1:1", APIKey: "secret", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := g.GenerateFix(context.Background(), "prompt"); !sdkerrors.IsNetworkError(err) {
		t.Errorf("kind = %v, want network", sdkerrors.GetKind(err))
	}
}
