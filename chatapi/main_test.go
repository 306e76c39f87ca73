package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tomappdev/coach"
	"tomappdev/framing"
	"tomappdev/logger"
	"tomappdev/players"
)

type zeroEntropy struct{}

func (zeroEntropy) IntN(int) int { return 0 }

func newTestServer(t *testing.T, props ChatAPIConnectProps) *httptest.Server {
	t.Helper()
	props.Logger = logger.Nop()
	if props.Generator == nil {
		props.Generator = coach.NewGenerator(zeroEntropy{})
	}
	api := Connect(context.Background(), props)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func postChat(t *testing.T, server *httptest.Server, role string, messages ...ChatMessage) *http.Response {
	t.Helper()
	body, err := json.Marshal(ChatRequest{Messages: messages})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("post chat: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestChatStreamsTwoFrames(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp := postChat(t, server, "student", ChatMessage{Role: "user", Content: "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	want := `0:"Hi! I'm here to help. Tell me what skills you want to improve or ask for training tips."` + "\n" + "e:[]\n"
	if got := readBody(t, resp); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestChatUsesOnlyLastMessage(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp := postChat(t, server, "student",
		ChatMessage{Role: "assistant", Content: "Hi! I'm your cricket coaching AI assistant."},
		ChatMessage{Role: "user", Content: "what should I improve"},
		ChatMessage{Role: "assistant", Content: "You need to focus on fielding"},
		ChatMessage{Role: "user", Content: "hello again"},
	)

	got, err := framing.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hi! I'm here to help. Tell me what skills you want to improve or ask for training tips." {
		t.Fatalf("got %q", got)
	}
}

func TestChatRoleFallbacks(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})
	gen := coach.NewGenerator(zeroEntropy{})
	message := "Tell me about the weather"

	for _, role := range []string{"student", "parent", "coach", ""} {
		resp := postChat(t, server, role, ChatMessage{Role: "user", Content: message})
		got, err := framing.Decode(resp.Body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		parsed, _ := coach.ParseRole(role)
		if want := gen.Generate(parsed, message, players.Sample()); got != want {
			t.Errorf("role %q: got %q, want %q", role, got, want)
		}
	}
}

func TestChatEscapesQuotes(t *testing.T) {
	player, err := players.New(players.StatisticsProps{
		Name:        `Rahul "The Wall"`,
		DisplayName: `"The Wall"`,
		Scores:      map[players.Skill]int{players.Batting: 9, players.Bowling: 3},
	})
	if err != nil {
		t.Fatalf("players.New: %v", err)
	}
	server := newTestServer(t, ChatAPIConnectProps{Player: player})

	resp := postChat(t, server, "parent", ChatMessage{Role: "user", Content: "progress report"})
	body := readBody(t, resp)

	want := coach.NewGenerator(zeroEntropy{}).Generate(coach.Parent, "progress report", player)
	if body != string(framing.EncodeText(want))+string(framing.EncodeEnd()) {
		t.Fatalf("unexpected body %q", body)
	}

	got, _ := framing.Decode(bytes.NewBufferString(body))
	if got != want {
		t.Fatalf("decoded %q, want %q", got, want)
	}
}

func TestChatEmptyHistory(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp := postChat(t, server, "coach")
	got, _ := framing.Decode(resp.Body)
	if got == "" {
		t.Fatal("expected a fallback reply for empty history")
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp, err := server.Client().Post(server.URL+"/api/chat", "application/json", bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func chatFrom(t *testing.T, handler http.Handler, remoteAddr string, headers map[string]string) int {
	t.Helper()
	body, err := json.Marshal(ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func newTestHandler(props ChatAPIConnectProps) http.Handler {
	props.Logger = logger.Nop()
	props.Generator = coach.NewGenerator(zeroEntropy{})
	return Connect(context.Background(), props).Handler()
}

func TestChatRateLimit(t *testing.T) {
	handler := newTestHandler(ChatAPIConnectProps{RatePerMinute: 1})

	if code := chatFrom(t, handler, "203.0.113.5:40000", nil); code != http.StatusOK {
		t.Fatalf("first status = %d", code)
	}
	if code := chatFrom(t, handler, "203.0.113.5:40001", nil); code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", code)
	}
	if code := chatFrom(t, handler, "198.51.100.7:40000", nil); code != http.StatusOK {
		t.Fatalf("other client status = %d", code)
	}
}

func TestChatRateLimitIgnoresForwardedHeaders(t *testing.T) {
	handler := newTestHandler(ChatAPIConnectProps{RatePerMinute: 2})

	accepted := 0
	for i := 0; i < 20; i++ {
		headers := map[string]string{
			"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("10.1.0.%d", i+1),
		}
		if chatFrom(t, handler, "203.0.113.5:40000", headers) == http.StatusOK {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("accepted %d requests from one socket address, want 2", accepted)
	}
}

func TestChatRateLimitTrustedProxy(t *testing.T) {
	handler := newTestHandler(ChatAPIConnectProps{RatePerMinute: 1, TrustProxy: true})

	for _, client := range []string{"10.0.0.1", "10.0.0.2"} {
		headers := map[string]string{"X-Forwarded-For": client}
		if code := chatFrom(t, handler, "203.0.113.5:40000", headers); code != http.StatusOK {
			t.Errorf("client %s status = %d", client, code)
		}
	}
	headers := map[string]string{"X-Forwarded-For": "10.0.0.1"}
	if code := chatFrom(t, handler, "203.0.113.5:40000", headers); code != http.StatusTooManyRequests {
		t.Errorf("repeat client status = %d, want 429", code)
	}
}

func TestChatRateLimitSkipsLoopback(t *testing.T) {
	handler := newTestHandler(ChatAPIConnectProps{RatePerMinute: 3})

	for _, addr := range []string{"127.0.0.1:50000", "[::1]:50000"} {
		for i := 0; i < 5; i++ {
			if code := chatFrom(t, handler, addr, nil); code != http.StatusOK {
				t.Fatalf("%s request %d status = %d", addr, i+1, code)
			}
		}
	}
}

func TestClientLimiterPrunesIdleVisitors(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newClientLimiter(1)
	l.now = func() time.Time { return now }

	if !l.allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("second request inside the window should be limited")
	}

	now = now.Add(visitorIdleTTL + time.Minute)
	l.allow("10.0.0.2")
	if _, ok := l.visitors["10.0.0.1"]; ok {
		t.Error("idle visitor was not pruned")
	}
}

func TestRoleRoutes(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp, err := server.Client().Get(server.URL + "/api/roles/parent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var info RoleInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Role != coach.Parent || info.Greeting != coach.Greeting(coach.Parent) || len(info.Suggestions) != 4 {
		t.Errorf("unexpected role info %+v", info)
	}

	missing, err := server.Client().Get(server.URL + "/api/roles/umpire")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown role status = %d", missing.StatusCode)
	}

	all, err := server.Client().Get(server.URL + "/api/roles")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer all.Body.Close()
	var infos []RoleInfo
	if err := json.NewDecoder(all.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != len(coach.Roles) {
		t.Errorf("got %d roles", len(infos))
	}
}

func TestPlayerRoute(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp, err := server.Client().Get(server.URL + "/api/player")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var profile PlayerProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.DisplayName != "Arjun" || profile.Age != 16 {
		t.Errorf("unexpected profile %+v", profile)
	}
	if profile.Skills[players.Bowling] != 8 {
		t.Errorf("bowling = %d", profile.Skills[players.Bowling])
	}
	if len(profile.Insights) != 3 || len(profile.MonthlyProgress) != 4 {
		t.Errorf("insights=%d progress=%d", len(profile.Insights), len(profile.MonthlyProgress))
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, ChatAPIConnectProps{})

	resp, err := server.Client().Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || readBody(t, resp) != "ok" {
		t.Fatalf("unexpected health response")
	}
}

func TestServeReportsListenError(t *testing.T) {
	api := Connect(context.Background(), ChatAPIConnectProps{Logger: logger.Nop()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := api.Serve(ctx, ":-1"); err == nil {
		t.Fatal("expected an error for an invalid address")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	api := Connect(context.Background(), ChatAPIConnectProps{Logger: logger.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- api.Serve(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v after cancel", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
