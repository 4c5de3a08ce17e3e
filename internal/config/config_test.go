package config

import (
	"encoding/json"
	"testing"
)

func TestSettings_JSON(t *testing.T) {
	jsonStr := `{"engine": {"max_steps": 4, "max_input_chars": 9000}, "retrieval": {"bm25_k1": 1.5}}`
	var settings Settings
	if err := json.Unmarshal([]byte(jsonStr), &settings); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if settings.Engine.MaxSteps != 4 {
		t.Errorf("Expected MaxSteps 4, got %d", settings.Engine.MaxSteps)
	}
	if settings.Engine.MaxInputChars != 9000 {
		t.Errorf("Expected MaxInputChars 9000, got %d", settings.Engine.MaxInputChars)
	}
	if settings.Retrieval.BM25K1 != 1.5 {
		t.Errorf("Expected BM25K1 1.5, got %f", settings.Retrieval.BM25K1)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.Engine.MaxSteps != 6 {
		t.Errorf("Expected default MaxSteps 6, got %d", s.Engine.MaxSteps)
	}
	if s.Engine.MaxInputChars != 12000 {
		t.Errorf("Expected default MaxInputChars 12000, got %d", s.Engine.MaxInputChars)
	}
	if s.Pinecone.NamespaceContext != "ContextLibrary" {
		t.Errorf("Unexpected context namespace: %s", s.Pinecone.NamespaceContext)
	}
	if s.Pinecone.NamespaceKnowledge != "KnowledgeStore" {
		t.Errorf("Unexpected knowledge namespace: %s", s.Pinecone.NamespaceKnowledge)
	}
	if s.Auth.CookieName != "quill_session" {
		t.Errorf("Unexpected cookie name: %s", s.Auth.CookieName)
	}
}

func TestProfileFor(t *testing.T) {
	dev := ProfileFor("dev")
	if !dev.Debug {
		t.Error("Expected dev profile to enable debug")
	}
	if dev.EnableInputModeration {
		t.Error("Expected dev profile to disable input moderation")
	}
	if dev.RateLimitPerMin != 100 {
		t.Errorf("Expected dev rate limit 100, got %d", dev.RateLimitPerMin)
	}

	prod := ProfileFor("prod")
	if prod.Debug {
		t.Error("Expected prod profile to disable debug")
	}
	if !prod.EnableInputModeration {
		t.Error("Expected prod profile to enable input moderation")
	}
	if prod.BreakerThreshold != 2 {
		t.Errorf("Expected prod breaker threshold 2, got %d", prod.BreakerThreshold)
	}

	unknown := ProfileFor("something-else")
	if unknown.Name != "dev" {
		t.Errorf("Expected unknown env to fall back to dev, got %s", unknown.Name)
	}
}
