package lumen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestTransport_SetsHeaders verifies the auth and content-type headers.
func TestTransport_SetsHeaders(t *testing.T) {
	var gotKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, "secret-token", time.Second)
	if err := tr.post(context.Background(), pathHeartbeat, identityRequest{AppID: "app"}); err != nil {
		t.Fatalf("post returned error: %v", err)
	}

	if gotKey != "secret-token" {
		t.Errorf("X-API-Key = %q, want %q", gotKey, "secret-token")
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
}

// TestTransport_Status200_IsSuccess verifies exactly 200 is success.
func TestTransport_Status200_IsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, "k", time.Second)
	if err := tr.post(context.Background(), pathAck, identityRequest{AppID: "app"}); err != nil {
		t.Errorf("post returned error on 200: %v", err)
	}
}

// TestTransport_NonOKStatus_IsFailure verifies any non-200 status is an
// error, including other 2xx codes.
func TestTransport_NonOKStatus_IsFailure(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		tr := newTransport(srv.URL, "k", time.Second)
		if err := tr.post(context.Background(), pathBulk, identityRequest{AppID: "app"}); err == nil {
			t.Errorf("post on status %d returned nil error", status)
		}
		srv.Close()
	}
}

// TestTransport_ErrorIncludesServerMessage verifies the diagnostic message
// from the response body is surfaced in the error.
func TestTransport_ErrorIncludesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "unknown API key"}`))
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, "k", time.Second)
	err := tr.post(context.Background(), pathBulk, identityRequest{AppID: "app"})
	if err == nil {
		t.Fatal("post returned nil error on 403")
	}
	if !strings.Contains(err.Error(), "unknown API key") {
		t.Errorf("error %q does not include the server message", err)
	}
}

// TestTransport_NonJSONErrorBody_StillFails verifies a malformed error body
// does not mask the failure.
func TestTransport_NonJSONErrorBody_StillFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, "k", time.Second)
	if err := tr.post(context.Background(), pathBulk, identityRequest{AppID: "app"}); err == nil {
		t.Error("post returned nil error on 502 with non-JSON body")
	}
}

// TestTransport_ConnectionRefused_IsFailure verifies transport-level errors
// surface like bad statuses.
func TestTransport_ConnectionRefused_IsFailure(t *testing.T) {
	// Grab a port and close the listener so the connection is refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := newTransport(url, "k", time.Second)
	if err := tr.post(context.Background(), pathHeartbeat, identityRequest{AppID: "app"}); err == nil {
		t.Error("post returned nil error against closed server")
	}
}

// TestServerMessage_Parsing verifies diagnostic extraction edge cases.
func TestServerMessage_Parsing(t *testing.T) {
	if got := serverMessage([]byte(`{"message":"rate limited"}`)); got != "rate limited" {
		t.Errorf("serverMessage = %q, want %q", got, "rate limited")
	}
	if got := serverMessage([]byte(`{"error":"other shape"}`)); got != "" {
		t.Errorf("serverMessage = %q for foreign shape, want empty", got)
	}
	if got := serverMessage([]byte(`not json`)); got != "" {
		t.Errorf("serverMessage = %q for non-JSON, want empty", got)
	}
}
