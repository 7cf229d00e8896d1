package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConsoleDeliverLogsPassword(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	err := Console{}.Deliver(context.Background(), Notice{
		Correo:   "ana@example.com",
		Password: "xK3temp9",
	})
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "ana@example.com") || !strings.Contains(out, "xK3temp9") {
		t.Errorf("console delivery must log recipient and password, got %q", out)
	}
}

func TestWebhookDeliver(t *testing.T) {
	var received Notice
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notice := Notice{Correo: "ana@example.com", Nombre: "Ana", Password: "xK3temp9"}
	if err := NewWebhook(srv.URL).Deliver(context.Background(), notice); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if received != notice {
		t.Errorf("webhook received %+v, want %+v", received, notice)
	}
}

func TestWebhookDeliverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Deliver(context.Background(), Notice{Correo: "ana@example.com"})
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}
