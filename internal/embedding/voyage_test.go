/*-------------------------------------------------------------------------
 *
 * exoquery - Voyage AI Embedding Provider Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewVoyageProvider(t *testing.T) {
	if _, err := NewVoyageProvider("", "", "", 0); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewVoyageProvider("pa-test", "voyage-1", "", 0); err == nil {
		t.Error("expected error for unsupported model")
	}

	provider, err := NewVoyageProvider("pa-test", "", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.ModelName() != "voyage-3-lite" || provider.Dimensions() != 512 {
		t.Errorf("unexpected defaults: model=%s dims=%d", provider.ModelName(), provider.Dimensions())
	}
	if provider.baseURL != DefaultVoyageURL {
		t.Errorf("unexpected base URL %q", provider.baseURL)
	}
}

func TestVoyageProvider_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pa-test" {
			t.Errorf("missing bearer token")
		}
		var req voyageEmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 1 || req.Input[0] != "orbital period" {
			t.Errorf("unexpected input %v", req.Input)
		}

		resp := voyageEmbeddingResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{1, 2}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewVoyageProvider("pa-test", "voyage-3", server.URL, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	provider.client = server.Client()

	embedding, err := provider.Embed(context.Background(), "orbital period")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embedding) != 2 {
		t.Errorf("unexpected embedding %v", embedding)
	}
}

func TestVoyageProvider_Embed_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail": "rate limited"}`))
	}))
	defer server.Close()

	provider, _ := NewVoyageProvider("pa-test", "voyage-3", server.URL, 0)
	provider.client = server.Client()

	if _, err := provider.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for rate limited response")
	}
	if _, err := provider.Embed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}
