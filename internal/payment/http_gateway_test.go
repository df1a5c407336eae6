package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type providerCall struct {
	path string
	auth string
	body map[string]interface{}
}

func newProvider(t *testing.T, status int, response string) (*httptest.Server, *[]providerCall) {
	t.Helper()
	var calls []providerCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode provider request: %v", err)
		}
		calls = append(calls, providerCall{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			body: body,
		})
		w.WriteHeader(status)
		if response != "" {
			w.Write([]byte(response))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestPreAuthorize(t *testing.T) {
	srv, calls := newProvider(t, http.StatusCreated, `{"ref":"hold-abc"}`)
	g := NewHTTPGateway(srv.URL, "provider-key", NewDefaultHTTPClient(time.Second))

	ref, err := g.PreAuthorize(context.Background(), 42, 25)
	if err != nil {
		t.Fatalf("preauthorize: %v", err)
	}
	if ref != "hold-abc" {
		t.Fatalf("ref = %q, want hold-abc", ref)
	}

	if len(*calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(*calls))
	}
	call := (*calls)[0]
	if call.path != "/v1/holds" {
		t.Fatalf("path = %q", call.path)
	}
	if call.auth != "Bearer provider-key" {
		t.Fatalf("auth = %q", call.auth)
	}
	if call.body["user_id"] != float64(42) || call.body["amount_eur"] != float64(25) {
		t.Fatalf("body = %v", call.body)
	}
}

func TestPreAuthorizeDeclined(t *testing.T) {
	srv, _ := newProvider(t, http.StatusPaymentRequired, `{"error":"insufficient funds"}`)
	g := NewHTTPGateway(srv.URL, "k", NewDefaultHTTPClient(time.Second))

	_, err := g.PreAuthorize(context.Background(), 42, 25)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
}

func TestPreAuthorizeProviderOutage(t *testing.T) {
	srv, _ := newProvider(t, http.StatusBadGateway, "")
	g := NewHTTPGateway(srv.URL, "k", NewDefaultHTTPClient(time.Second))

	_, err := g.PreAuthorize(context.Background(), 42, 25)
	if err == nil || errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want non-decline failure", err)
	}
}

func TestCapture(t *testing.T) {
	srv, calls := newProvider(t, http.StatusOK, `{"status":"succeeded"}`)
	g := NewHTTPGateway(srv.URL, "k", NewDefaultHTTPClient(time.Second))

	result, err := g.Capture(context.Background(), "hold-abc", 14.4)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.Status != "succeeded" {
		t.Fatalf("status = %q", result.Status)
	}
	call := (*calls)[0]
	if call.path != "/v1/captures" {
		t.Fatalf("path = %q", call.path)
	}
	if call.body["ref"] != "hold-abc" || call.body["amount_eur"] != 14.4 {
		t.Fatalf("body = %v", call.body)
	}
}

func TestCaptureDeclined(t *testing.T) {
	srv, _ := newProvider(t, http.StatusPaymentRequired, "")
	g := NewHTTPGateway(srv.URL, "k", NewDefaultHTTPClient(time.Second))

	if _, err := g.Capture(context.Background(), "hold-abc", 14.4); !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
}

func TestCancelTolerates4xx(t *testing.T) {
	// Cancelling an unknown hold is a provider-side no-op; 4xx must not error.
	srv, calls := newProvider(t, http.StatusNotFound, "")
	g := NewHTTPGateway(srv.URL, "k", NewDefaultHTTPClient(time.Second))

	if err := g.Cancel(context.Background(), "hold-ghost"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if (*calls)[0].path != "/v1/cancellations" {
		t.Fatalf("path = %q", (*calls)[0].path)
	}
}

func TestCancelFailsOn5xx(t *testing.T) {
	srv, _ := newProvider(t, http.StatusInternalServerError, "")
	g := NewHTTPGateway(srv.URL, "k", NewDefaultHTTPClient(time.Second))

	if err := g.Cancel(context.Background(), "hold-abc"); err == nil {
		t.Fatal("expected error on provider 5xx")
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv, calls := newProvider(t, http.StatusCreated, `{"ref":"r"}`)
	g := NewHTTPGateway(srv.URL+"/", "", NewDefaultHTTPClient(time.Second))

	if _, err := g.PreAuthorize(context.Background(), 1, 1); err != nil {
		t.Fatalf("preauthorize: %v", err)
	}
	call := (*calls)[0]
	if call.path != "/v1/holds" {
		t.Fatalf("path = %q", call.path)
	}
	if call.auth != "" {
		t.Fatalf("auth header set with empty api key: %q", call.auth)
	}
}
