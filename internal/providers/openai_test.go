package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completionJSON(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestChatSendsWireFormat(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionJSON("hola")))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "sk-test", srv.URL, "llama-3.3-70b-versatile")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "eres un asesor"},
			{Role: "user", Content: "hola"},
		},
		Temperature: 0.6,
		TopP:        0.9,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hola" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("Usage = %+v", resp.Usage)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "llama-3.3-70b-versatile" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	if gotBody["temperature"] != 0.6 || gotBody["top_p"] != 0.9 {
		t.Fatalf("sampling params = %v / %v", gotBody["temperature"], gotBody["top_p"])
	}
	msgs, _ := gotBody["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestChatRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionJSON("listo")))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "sk-test", srv.URL, "llama-3.3-70b-versatile").
		WithRetryConfig(fastRetry(2))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "listo" || calls.Load() != 2 {
		t.Fatalf("content=%q calls=%d", resp.Content, calls.Load())
	}
}

func TestChatDoesNotRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "120")
		http.Error(w, `{"error":"rate_limit_exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "sk-test", srv.URL, "llama-3.3-70b-versatile").
		WithRetryConfig(fastRetry(3))
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hola"}},
	})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
	if httpErr.RetryAfter != 120*time.Second {
		t.Fatalf("RetryAfter = %v", httpErr.RetryAfter)
	}
	if calls.Load() != 1 {
		t.Fatalf("rate-limited call retried %d times", calls.Load())
	}
}

func TestChatRetriesEmptyCompletion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(completionJSON("   ")))
			return
		}
		w.Write([]byte(completionJSON("ahora sí")))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "sk-test", srv.URL, "llama-3.3-70b-versatile").
		WithRetryConfig(fastRetry(2))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ahora sí" || calls.Load() != 2 {
		t.Fatalf("content=%q calls=%d", resp.Content, calls.Load())
	}
}

func TestChatEmptyCompletionExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(completionJSON("")))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "sk-test", srv.URL, "llama-3.3-70b-versatile").
		WithRetryConfig(fastRetry(2))
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hola"}},
	})

	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("empty completion attempted %d times, want 2", calls.Load())
	}
}

func TestChatRetriesTimedOutAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(500 * time.Millisecond):
			}
			return
		}
		w.Write([]byte(completionJSON("lento pero seguro")))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "sk-test", srv.URL, "llama-3.3-70b-versatile").
		WithRetryConfig(fastRetry(2)).
		WithAttemptTimeout(50 * time.Millisecond)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "lento pero seguro" || calls.Load() != 2 {
		t.Fatalf("content=%q calls=%d", resp.Content, calls.Load())
	}
}

func TestGroqProviderDefaults(t *testing.T) {
	p := NewGroqProvider("sk-test", "llama-3.3-70b-versatile")
	if p.Name() != "groq" {
		t.Fatalf("Name = %q", p.Name())
	}
	if p.APIBase() != "https://api.groq.com/openai/v1" {
		t.Fatalf("APIBase = %q", p.APIBase())
	}
	if p.DefaultModel() != "llama-3.3-70b-versatile" {
		t.Fatalf("DefaultModel = %q", p.DefaultModel())
	}
}
