package httpmiddleware

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 512

var defaultClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

type HttpRequestStruct struct {
	Ctx     context.Context
	Method  string
	Url     string
	Body    io.Reader
	Headers map[string]string
	// Client overrides the traced default client.
	Client *http.Client
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func do(args HttpRequestStruct) (*http.Response, error) {
	ctx := args.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	method := args.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, args.Url, args.Body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	client := args.Client
	if client == nil {
		client = defaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, args.Url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// HttpRequest performs the request and returns the whole body of a 2xx response.
func HttpRequest(args HttpRequestStruct) ([]byte, error) {
	resp, err := do(args)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// HttpStream performs the request and hands back the open body of a 200
// response. The caller must close it.
func HttpStream(args HttpRequestStruct) (io.ReadCloser, error) {
	resp, err := do(args)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("%s %s: response has no body", args.Method, args.Url)
	}
	return resp.Body, nil
}
