package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOllamaServer(t *testing.T, chunks []string) (*httptest.Server, <-chan map[string]any) {
	t.Helper()
	requests := make(chan map[string]any, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var captured map[string]any
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case requests <- captured:
		default:
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for i, c := range chunks {
			done := i == len(chunks)-1
			line, _ := json.Marshal(map[string]any{"model": "test", "response": c, "done": done})
			fmt.Fprintf(w, "%s\n", line)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestOllamaRuntimeStreamsChunks(t *testing.T) {
	t.Parallel()

	srv, requests := newOllamaServer(t, []string{"An", "na", ""})
	rt, err := NewOllamaRuntime(srv.URL, "llama3", srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaRuntime() error: %v", err)
	}

	svc := startService(t, rt, Options{})
	out, err := svc.Invoke(context.Background(), "<prompt>", []string{"<|eot_id|>"}, 16)
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if out != "Anna" {
		t.Fatalf("Invoke() = %q, want %q", out, "Anna")
	}

	req := <-requests
	if req["raw"] != true {
		t.Errorf("request raw = %v, want true", req["raw"])
	}
	if req["prompt"] != "<prompt>" || req["model"] != "llama3" {
		t.Errorf("unexpected request %v", req)
	}
	opts, _ := req["options"].(map[string]any)
	if opts["num_predict"] != float64(16) {
		t.Errorf("num_predict = %v, want 16", opts["num_predict"])
	}
}

func TestOllamaRuntimeBudgetStopsEarly(t *testing.T) {
	t.Parallel()

	srv, _ := newOllamaServer(t, []string{"a", "b", "c", "d"})
	rt, err := NewOllamaRuntime(srv.URL, "llama3", srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaRuntime() error: %v", err)
	}

	svc := startService(t, rt, Options{})
	out, err := svc.Invoke(context.Background(), "p", nil, 2)
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if out != "ab" {
		t.Fatalf("Invoke() = %q, want %q", out, "ab")
	}
}

func TestOllamaRuntimePing(t *testing.T) {
	t.Parallel()

	srv, _ := newOllamaServer(t, nil)
	rt, err := NewOllamaRuntime(srv.URL, "llama3", srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaRuntime() error: %v", err)
	}
	if err := rt.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	svc := NewService(rt, Options{}, testLogger())
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("Service.Ping() error: %v", err)
	}
}

func TestNewOllamaRuntimeRequiresModel(t *testing.T) {
	t.Parallel()

	if _, err := NewOllamaRuntime("localhost:11434", "", nil); err == nil {
		t.Fatal("expected error for empty model")
	}
}
