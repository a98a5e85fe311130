package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/felixgeelhaar/truthguard/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

func newScoringServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/fact-check" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		raw, _ := io.ReadAll(r.Body)
		var req credibility.CheckRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		received = append(received, req.Text)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func TestClient_Check_Success(t *testing.T) {
	server, received := newScoringServer(t, http.StatusOK,
		`{"score":85,"category":"fabricated_claim","explanation":"No evidence.","tip":"Check sources.","flags":["no_source","emotional_language"]}`)

	c := NewClient()
	res, err := c.Check(context.Background(), server.URL+"/api/", "The earth is flat")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	want := credibility.Success(85, "fabricated_claim", "No evidence.", "Check sources.", "no_source", "emotional_language")
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if level, _ := res.Risk(); level != credibility.RiskHigh {
		t.Errorf("risk = %s, want high", level)
	}
	if len(*received) != 1 || (*received)[0] != "The earth is flat" {
		t.Errorf("unexpected requests %v", *received)
	}
}

func TestClient_Check_ValidationVariantPassesThrough(t *testing.T) {
	server, _ := newScoringServer(t, http.StatusOK,
		`{"score":null,"category":"short_input","explanation":"Given input is too short","tip":"Enter a longer claim","flags":["too short"]}`)

	res, err := NewClient().Check(context.Background(), server.URL+"/api", "abcde")
	if err != nil {
		t.Fatalf("validation variant must not be a transport error: %v", err)
	}
	if res.Variant() != credibility.VariantValidation {
		t.Errorf("variant = %s", res.Variant())
	}
}

func TestClient_Check_ErrorStatusWithBody(t *testing.T) {
	server, _ := newScoringServer(t, http.StatusBadRequest, `{"error":"No text provided"}`)

	_, err := NewClient().Check(context.Background(), server.URL+"/api", "hello world")
	var terr *credibility.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Message != "No text provided" || terr.Status != http.StatusBadRequest {
		t.Errorf("unexpected error %+v", terr)
	}
}

func TestClient_Check_ErrorStatusWithoutBody(t *testing.T) {
	server, _ := newScoringServer(t, http.StatusInternalServerError, `{}`)

	_, err := NewClient().Check(context.Background(), server.URL+"/api", "hello world")
	if err == nil || err.Error() != credibility.ErrGenericFailure {
		t.Fatalf("expected generic failure, got %v", err)
	}
}

func TestClient_Check_MalformedJSON(t *testing.T) {
	server, _ := newScoringServer(t, http.StatusOK, `<html>oops</html>`)

	_, err := NewClient().Check(context.Background(), server.URL+"/api", "hello world")
	if !credibility.IsTransport(err) || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("expected malformed transport error, got %v", err)
	}
}

func TestClient_Check_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewClient().Check(context.Background(), "http://"+addr+"/api", "hello world")
	var terr *credibility.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Err == nil {
		t.Error("expected the underlying network error to be wrapped")
	}
}

func TestClient_Check_RetriesNetworkFailuresOnly(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":"upstream down"}`)
	}))
	defer server.Close()

	c := NewClient(WithRetry(3, time.Millisecond))
	if _, err := c.Check(context.Background(), server.URL, "hello world"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("service error responses must not be retried, got %d calls", got)
	}
}

func TestClient_Check_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewClient(WithTimeout(50 * time.Millisecond))
	start := time.Now()
	_, err := c.Check(context.Background(), server.URL, "hello world")
	if !credibility.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	}))
	defer server.Close()

	c := NewClient()
	if err := c.Health(context.Background(), server.URL+"/api"); err != nil {
		t.Errorf("Health failed: %v", err)
	}
	if err := c.Health(context.Background(), server.URL); err == nil {
		t.Error("expected error for missing health endpoint")
	}
}

func TestSettingsScorer_ReadsServiceURLPerCall(t *testing.T) {
	first, firstReq := newScoringServer(t, http.StatusOK, `{"score":10,"category":"factual"}`)
	second, secondReq := newScoringServer(t, http.StatusOK, `{"score":90,"category":"false"}`)

	store := storage.NewMemorySettingsStore(settings.Partial{ServiceURL: settings.String(first.URL + "/api")})
	scorer := NewSettingsScorer(NewClient(), store)
	ctx := context.Background()

	if _, err := scorer.Check(ctx, "hello world"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, settings.Partial{ServiceURL: settings.String(second.URL + "/api")}); err != nil {
		t.Fatal(err)
	}
	res, err := scorer.Check(ctx, "hello again")
	if err != nil {
		t.Fatal(err)
	}
	if *res.Score != 90 || len(*firstReq) != 1 || len(*secondReq) != 1 {
		t.Errorf("expected second call to reach the new service: score=%d first=%v second=%v", *res.Score, *firstReq, *secondReq)
	}
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint("http://localhost:5000/api/"); got != "http://localhost:5000/api/fact-check" {
		t.Errorf("Endpoint = %q", got)
	}
}
