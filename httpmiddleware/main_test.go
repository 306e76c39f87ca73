package httpmiddleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHttpRequestSendsHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("X-Role") != "coach" {
			t.Errorf("X-Role = %q", r.Header.Get("X-Role"))
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("echo:"), body...))
	}))
	defer server.Close()

	body, err := HttpRequest(HttpRequestStruct{
		Ctx:     context.Background(),
		Method:  http.MethodPost,
		Url:     server.URL,
		Body:    strings.NewReader("payload"),
		Headers: map[string]string{"X-Role": "coach"},
	})
	if err != nil {
		t.Fatalf("HttpRequest failed: %v", err)
	}
	if string(body) != "echo:payload" {
		t.Fatalf("body = %q", body)
	}
}

func TestHttpRequestStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := HttpRequest(HttpRequestStruct{Url: server.URL})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
}

func TestHttpStreamRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("later"))
	}))
	defer server.Close()

	if _, err := HttpStream(HttpRequestStruct{Method: http.MethodPost, Url: server.URL}); err == nil {
		t.Fatal("expected an error for a 202 response")
	}
}

func TestHttpStreamReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("streamed"))
	}))
	defer server.Close()

	body, err := HttpStream(HttpRequestStruct{Method: http.MethodPost, Url: server.URL})
	if err != nil {
		t.Fatalf("HttpStream failed: %v", err)
	}
	defer body.Close()

	b, _ := io.ReadAll(body)
	if string(b) != "streamed" {
		t.Fatalf("body = %q", b)
	}
}
