package blueprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/retrieval"
)

type fakeEmbedder struct {
	fail  bool
	texts []string
}

func (f *fakeEmbedder) Chat(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("unexpected chat call")
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embed backend down")
	}
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string { return "fake-embed" }

type captureStore struct {
	namespace string
	vectors   []retrieval.Vector
	failing   bool
}

func (s *captureStore) Query(context.Context, *retrieval.QueryRequest) ([]retrieval.Match, error) {
	return nil, nil
}

func (s *captureStore) Upsert(_ context.Context, namespace string, vectors []retrieval.Vector) error {
	if s.failing {
		return errors.New("store down")
	}
	s.namespace = namespace
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *captureStore) Delete(context.Context, *retrieval.DeleteRequest) error { return nil }

func (s *captureStore) Stats(context.Context) (*retrieval.IndexStats, error) { return nil, nil }

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if got := Load(filepath.Join(dir, "absent.json")); got != nil {
			t.Errorf("Expected nil for missing file, got %v", got)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if got := Load(path); got != nil {
			t.Errorf("Expected nil for malformed file, got %v", got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.json")
		if err := WriteCatalog(path, Defaults()); err != nil {
			t.Fatalf("WriteCatalog failed: %v", err)
		}
		records := Load(path)
		if len(records) != len(Defaults()) {
			t.Fatalf("Expected %d records, got %d", len(Defaults()), len(records))
		}
		if records[0].ID != "bp-paper-qa" || !records[0].Valid() {
			t.Errorf("Unexpected first record: %+v", records[0])
		}
	})
}

func TestSeedUsesDefaultsWhenCatalogMissing(t *testing.T) {
	client := &fakeEmbedder{}
	store := &captureStore{}
	seeder := NewSeeder(client, store)

	n, err := seeder.Seed(context.Background(), "ContextLibrary", filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != len(Defaults()) {
		t.Errorf("Expected %d seeded records, got %d", len(Defaults()), n)
	}
	if store.namespace != "ContextLibrary" {
		t.Errorf("Unexpected namespace: %q", store.namespace)
	}
	if len(store.vectors) != n {
		t.Fatalf("Expected %d vectors, got %d", n, len(store.vectors))
	}

	// Metadata carries the description and the serialized blueprint.
	md := store.vectors[0].Metadata
	if md["description"] == "" {
		t.Error("Expected description metadata")
	}
	bp, _ := md["blueprint"].(string)
	if bp == "" || bp[0] != '{' {
		t.Errorf("Expected serialized blueprint object, got %q", bp)
	}
}

func TestSeedReadsCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	catalog := []Record{
		{ID: "bp-custom", Description: "custom writing shape", Blueprint: map[string]any{"purpose": "custom"}},
		{ID: "", Description: "invalid entry is skipped", Blueprint: map[string]any{"x": 1}},
	}
	if err := WriteCatalog(path, catalog); err != nil {
		t.Fatal(err)
	}

	store := &captureStore{}
	seeder := NewSeeder(&fakeEmbedder{}, store)

	n, err := seeder.Seed(context.Background(), "ContextLibrary", path)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 seeded record, got %d", n)
	}
	if store.vectors[0].ID != "bp-custom" {
		t.Errorf("Unexpected vector id: %q", store.vectors[0].ID)
	}
}

func TestSeedWithoutBackends(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		seeder := NewSeeder(&fakeEmbedder{}, nil)
		n, err := seeder.Seed(context.Background(), "ns", "")
		if err != nil || n != 0 {
			t.Errorf("Expected silent no-op, got n=%d err=%v", n, err)
		}
	})

	t.Run("nil client", func(t *testing.T) {
		seeder := NewSeeder(nil, &captureStore{})
		n, err := seeder.Seed(context.Background(), "ns", "")
		if err != nil || n != 0 {
			t.Errorf("Expected silent no-op, got n=%d err=%v", n, err)
		}
	})
}

func TestSeedEmbedFailure(t *testing.T) {
	seeder := NewSeeder(&fakeEmbedder{fail: true}, &captureStore{})
	if _, err := seeder.Seed(context.Background(), "ns", ""); err == nil {
		t.Fatal("Expected embed failure to surface")
	}
}

func TestUpsertOne(t *testing.T) {
	store := &captureStore{}
	seeder := NewSeeder(&fakeEmbedder{}, store)

	rec := Record{ID: "bp-1", Description: "d", Blueprint: map[string]any{"purpose": "p"}}
	if err := seeder.UpsertOne(context.Background(), "ContextLibrary", rec); err != nil {
		t.Fatalf("UpsertOne failed: %v", err)
	}
	if len(store.vectors) != 1 || store.vectors[0].ID != "bp-1" {
		t.Errorf("Unexpected vectors: %+v", store.vectors)
	}

	if err := seeder.UpsertOne(context.Background(), "ns", Record{ID: "x"}); err == nil {
		t.Error("Expected error for incomplete record")
	}
}
