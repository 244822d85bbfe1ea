package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://x", Model: "m"}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("missing key: err = %v", err)
	}
	if _, err := New(Config{APIKey: "k", Model: "m"}); err == nil {
		t.Error("missing base URL should fail")
	}
	if _, err := New(Config{APIKey: "k", BaseURL: "http://x"}); err == nil {
		t.Error("missing model should fail")
	}
	c, err := New(Config{APIKey: "k", BaseURL: "http://x/v1/", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.BaseURL != "http://x/v1" || c.cfg.Timeout != 2*time.Minute {
		t.Errorf("defaults not applied: %+v", c.cfg)
	}
}

func TestComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/v1", Model: "llama3.3-70b", APIKey: "sk-test", Temperature: 0.7})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello there" {
		t.Errorf("content = %q", out)
	}
	if got.Model != "llama3.3-70b" || got.Temperature != 0.7 || len(got.Messages) != 2 || got.Stream {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error message", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "(401): bad key"},
		{"plain error body", http.StatusBadGateway, "upstream down", "(502): upstream down"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"garbage", http.StatusOK, `not json`, "parse response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := New(Config{BaseURL: srv.URL, Model: "m", APIKey: "k"})
			_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Model: "m", APIKey: "k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Complete(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
