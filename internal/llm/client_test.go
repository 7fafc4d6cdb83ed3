package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func completionServer(t *testing.T, reply string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if capture != nil {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			*capture = body
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-test",
			"model": "moonshot-v1-8k",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": reply,
					},
				},
			},
		})
	}))
}

func TestCompleteReturnsContent(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, `{"requires_tool":false}`, &captured)
	defer srv.Close()

	client := New(Options{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Model:   "moonshot-v1-8k",
	}, nil)

	got, err := client.Complete(context.Background(), "classify intent", "draw a diagram", 0.1)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"requires_tool":false}` {
		t.Errorf("Complete() = %q", got)
	}

	if captured["model"] != "moonshot-v1-8k" {
		t.Errorf("request model = %v", captured["model"])
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want system+user", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "classify intent" {
		t.Errorf("system message = %v", first)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := New(Options{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"}, nil)
	got, err := client.Complete(context.Background(), "s", "u", 0)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "" {
		t.Errorf("Complete() = %q, want empty string", got)
	}
}

func TestCompleteTransportError(t *testing.T) {
	client := New(Options{APIKey: "k", BaseURL: "http://127.0.0.1:1/v1", Model: "m"}, nil)
	_, err := client.Complete(context.Background(), "s", "u", 0)
	if err == nil {
		t.Fatal("Complete() error = nil, want transport failure")
	}
}

func TestChatUsesConversationalPrompt(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, "你好！有什么可以帮你的？", &captured)
	defer srv.Close()

	client := New(Options{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"}, nil)
	got, err := client.Chat(context.Background(), "你好")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "你好！有什么可以帮你的？" {
		t.Errorf("Chat() = %q", got)
	}

	msgs, _ := captured["messages"].([]any)
	first, _ := msgs[0].(map[string]any)
	content, _ := first["content"].(string)
	if !strings.Contains(content, "helpful assistant") {
		t.Errorf("chat system prompt = %q", content)
	}
}
