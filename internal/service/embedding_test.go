package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "embed-test" || len(req.Input) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	svc := NewEmbeddingService(&EmbeddingConfig{Model: "embed-test", BaseURL: srv.URL + "/v1", Dimensions: 2})
	got, err := svc.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("embeddings out of order: %v", got)
	}
}

func TestEmbed_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusBadRequest, `{"error":{"message":"no model"}}`},
		{"wrong count", http.StatusOK, `{"data":[]}`},
		{"wrong dimensions", http.StatusOK, `{"data":[{"index":0,"embedding":[1,2,3]}]}`},
		{"bad index", http.StatusOK, `{"data":[{"index":4,"embedding":[1,2]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			svc := NewEmbeddingService(&EmbeddingConfig{Model: "m", BaseURL: srv.URL, Dimensions: 2})
			if _, err := svc.Embed(context.Background(), "text"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	svc := NewEmbeddingService(&EmbeddingConfig{Model: "m", BaseURL: "http://127.0.0.1:1"})
	got, err := svc.EmbedBatch(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("EmbedBatch(nil) = %v, %v", got, err)
	}
}
