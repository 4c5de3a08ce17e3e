// Package blueprint manages context blueprints: reusable writing templates
// (purpose, tone, format, constraints) stored in the context namespace and
// retrieved by the Librarian to shape final outputs.
package blueprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/retrieval"
)

// Record is one seedable context blueprint.
type Record struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Blueprint   map[string]any `json:"blueprint"`
}

// Valid reports whether a record can be embedded and stored.
func (r Record) Valid() bool {
	return r.ID != "" && r.Description != "" && len(r.Blueprint) > 0
}

// Load reads a blueprint catalog file. A missing file yields an empty
// catalog; a malformed one is logged and treated the same way.
func Load(path string) []Record {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Blueprint] Failed to read catalog %s: %v", path, err)
		}
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("[Blueprint] Failed to parse catalog %s: %v", path, err)
		return nil
	}
	return records
}

// WriteCatalog saves records as a catalog file, creating parent directories.
func WriteCatalog(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create blueprint dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal blueprint catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write blueprint catalog: %w", err)
	}
	return nil
}

// Defaults is the built-in catalog used when no catalog file exists yet.
func Defaults() []Record {
	return []Record{
		{
			ID:          "bp-paper-qa",
			Description: "Answer questions about uploaded papers and reports with citations to the retrieved evidence.",
			Blueprint: map[string]any{
				"purpose": "paper_qa_assistant",
				"tone":    "clear, technical, and cautious",
				"format":  []any{"short_answer", "key_points", "citations", "next_questions"},
				"constraints": []any{
					"only use provided evidence",
					"flag uncertainty explicitly",
					"cite evidence ids like [e1]",
				},
			},
		},
		{
			ID:          "bp-executive-summary",
			Description: "Condense findings into an executive summary for business readers who skim.",
			Blueprint: map[string]any{
				"purpose": "executive_summary",
				"tone":    "crisp and direct",
				"format":  []any{"headline", "key_findings", "implications"},
				"constraints": []any{
					"lead with the conclusion",
					"no unexplained jargon",
					"keep under 300 words",
				},
			},
		},
		{
			ID:          "bp-study-notes",
			Description: "Turn source material into structured study notes with definitions and examples.",
			Blueprint: map[string]any{
				"purpose": "study_notes",
				"tone":    "instructive and plain",
				"format":  []any{"overview", "key_terms", "worked_examples", "open_questions"},
				"constraints": []any{
					"define every term on first use",
					"one concept per bullet",
				},
			},
		},
	}
}

// Seeder embeds blueprint descriptions and writes them into the context
// namespace so the Librarian can retrieve them.
type Seeder struct {
	client llm.Client
	store  retrieval.VectorStore
}

func NewSeeder(client llm.Client, store retrieval.VectorStore) *Seeder {
	return &Seeder{client: client, store: store}
}

// Seed loads the catalog at path (falling back to the built-in defaults
// when the file yields nothing) and upserts every valid record. It returns
// how many records were stored.
func (s *Seeder) Seed(ctx context.Context, namespace, path string) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	if s.client == nil {
		log.Printf("[Blueprint] LLM client missing; skipping blueprint seed")
		return 0, nil
	}

	records := Load(path)
	if len(records) == 0 {
		records = Defaults()
	}

	vectors := make([]retrieval.Vector, 0, len(records))
	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		vec, err := s.vectorFor(ctx, rec)
		if err != nil {
			return 0, err
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	if err := s.store.Upsert(ctx, namespace, vectors); err != nil {
		return 0, fmt.Errorf("seed blueprints: %w", err)
	}
	return len(vectors), nil
}

// UpsertOne embeds and stores a single record, as used by the
// /context-blueprint endpoint.
func (s *Seeder) UpsertOne(ctx context.Context, namespace string, rec Record) error {
	if s.store == nil {
		return errors.New("vector store not configured")
	}
	if !rec.Valid() {
		return errors.New("blueprint record is incomplete")
	}
	vec, err := s.vectorFor(ctx, rec)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, namespace, []retrieval.Vector{vec}); err != nil {
		return fmt.Errorf("upsert blueprint: %w", err)
	}
	return nil
}

func (s *Seeder) vectorFor(ctx context.Context, rec Record) (retrieval.Vector, error) {
	embeddings, err := s.client.Embed(ctx, []string{rec.Description})
	if err != nil {
		return retrieval.Vector{}, fmt.Errorf("embed blueprint %s: %w", rec.ID, err)
	}
	if len(embeddings) != 1 {
		return retrieval.Vector{}, fmt.Errorf("embed blueprint %s: got %d embeddings", rec.ID, len(embeddings))
	}

	blueprintJSON, err := json.Marshal(rec.Blueprint)
	if err != nil {
		return retrieval.Vector{}, fmt.Errorf("marshal blueprint %s: %w", rec.ID, err)
	}
	return retrieval.Vector{
		ID:     rec.ID,
		Values: embeddings[0],
		Metadata: map[string]any{
			"description": rec.Description,
			"blueprint":   string(blueprintJSON),
		},
	}, nil
}
