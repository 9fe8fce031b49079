package memory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(EmbeddingConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "User: hi\nAssistant: hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vector = %v", vec)
	}
	if gotPath != "/v1/embeddings" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotBody, "text-embedding-3-small") {
		t.Errorf("request body %s does not name the default model", gotBody)
	}
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(EmbeddingConfig{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	if _, err := e.Embed(context.Background(), "hi"); err == nil {
		t.Error("Embed succeeded against a failing server")
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(EmbeddingConfig{}); err == nil {
		t.Error("NewOpenAIEmbedder with no key succeeded")
	}
}
