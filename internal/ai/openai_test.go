package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newStubProvider(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if status != http.StatusOK {
			writer.WriteHeader(status)
			return
		}
		body := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(body); err != nil {
			t.Errorf("failed to encode stub response: %v", err)
		}
	}))
}

func newStubClient(t *testing.T, server *httptest.Server) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return client
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestClassifyParsesVerdict(t *testing.T) {
	server := newStubProvider(t, `{"is_educational": true, "suggested_tags": ["algebra"]}`, http.StatusOK)
	defer server.Close()

	classification, err := newStubClient(t, server).Classify(context.Background(), TextContent("Note Analysis. Title: Algebra. Filename: algebra.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !classification.IsEducational {
		t.Fatalf("expected educational verdict")
	}
	if len(classification.SuggestedTags) != 1 || classification.SuggestedTags[0] != "algebra" {
		t.Fatalf("unexpected tags: %v", classification.SuggestedTags)
	}
}

func TestClassifyMalformedPayloadIsCapabilityError(t *testing.T) {
	server := newStubProvider(t, "looks educational to me", http.StatusOK)
	defer server.Close()

	_, err := newStubClient(t, server).Classify(context.Background(), TextContent("notes"))
	if !IsCapabilityError(err) {
		t.Fatalf("expected capability error for malformed classification, got %v", err)
	}
}

func TestClassifyProviderFailureIsCapabilityError(t *testing.T) {
	server := newStubProvider(t, "", http.StatusInternalServerError)
	defer server.Close()

	_, err := newStubClient(t, server).Classify(context.Background(), TextContent("notes"))
	if !IsCapabilityError(err) {
		t.Fatalf("expected capability error for provider failure, got %v", err)
	}
}

func TestAssessQualityMalformedPayloadFallsBack(t *testing.T) {
	server := newStubProvider(t, "score: pretty good", http.StatusOK)
	defer server.Close()

	assessment, err := newStubClient(t, server).AssessQuality(context.Background(), TextContent("notes"), "Algebra", "Math")
	if err != nil {
		t.Fatalf("fallback branch must not error: %v", err)
	}
	if assessment != FallbackQuality() {
		t.Fatalf("expected fallback assessment, got %+v", assessment)
	}
}

func TestAssessQualityProviderFailureDoesNotFallBack(t *testing.T) {
	server := newStubProvider(t, "", http.StatusBadGateway)
	defer server.Close()

	_, err := newStubClient(t, server).AssessQuality(context.Background(), TextContent("notes"), "Algebra", "Math")
	if !IsCapabilityError(err) {
		t.Fatalf("provider failure must block, got %v", err)
	}
}
