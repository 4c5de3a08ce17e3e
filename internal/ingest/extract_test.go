package ingest

import (
	"context"
	"strings"
	"testing"
)

func TestClassifyBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"clause by decimal numbering", "2.1 liability caps apply to both parties.", blockClause},
		{"clause by section prefix", "Section 4.2 termination takes effect immediately.", blockClause},
		{"footnote", "1 See the appendix for raw data.", blockFootnote},
		{"numbered but long is not a footnote", "1 " + strings.Repeat("x", 200), blockPara},
		{"table-like rows", "region  q1  q2\nnorth  10  12\nsouth  11  13", blockTable},
		{"two rows are not a table", "north  10  12\nsouth  11  13", blockPara},
		{"plain paragraph", "The system retries failed calls with backoff.", blockPara},
		{"empty", "", blockPara},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyBlock(tt.text); got != tt.want {
				t.Errorf("classifyBlock(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeadingDetection(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Introduction", true},
		{"2 Related Work", true},
		{"3.1 Evaluation Setup", true},
		{"lowercase start", false},
		{"It was the best of times, it was the worst of times, and the sentence keeps going", true},
	}
	for _, tt := range tests {
		if got := headingRE.MatchString(tt.line); got != tt.want {
			t.Errorf("headingRE(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestExtractTextMarkdownSections(t *testing.T) {
	data := []byte("# Guide\n\nIntro paragraph.\n\n## Setup\n\nInstall the binary.\n\nRun it once.")
	blocks, method, err := extractBlocks(context.Background(), "guide.md", data, 0)
	if err != nil {
		t.Fatalf("extractBlocks: %v", err)
	}
	if method != "markdown" {
		t.Errorf("method = %q, want markdown", method)
	}
	if len(blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d: %+v", len(blocks), blocks)
	}

	wantSections := []string{"Guide", "Guide", "Setup", "Setup", "Setup"}
	for i, want := range wantSections {
		if blocks[i].Section != want {
			t.Errorf("block %d section = %q, want %q", i, blocks[i].Section, want)
		}
		if blocks[i].Page != 1 {
			t.Errorf("block %d page = %d, want 1", i, blocks[i].Page)
		}
	}
	if blocks[3].Text != "Install the binary." {
		t.Errorf("block 3 text = %q", blocks[3].Text)
	}
}

func TestExtractTextPlainHeading(t *testing.T) {
	data := []byte("Operations Manual\n\nrotate the logs weekly.\n\nempty the spool directory.")
	blocks, method, err := extractBlocks(context.Background(), "manual.txt", data, 0)
	if err != nil {
		t.Fatalf("extractBlocks: %v", err)
	}
	if method != "text" {
		t.Errorf("method = %q, want text", method)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	for i, b := range blocks {
		if b.Section != "Operations Manual" {
			t.Errorf("block %d section = %q, want Operations Manual", i, b.Section)
		}
	}
}

func TestExtractBlocksUnsupportedType(t *testing.T) {
	_, _, err := extractBlocks(context.Background(), "payload.exe", []byte("MZ"), 0)
	if err == nil || !strings.Contains(err.Error(), "unsupported file type") {
		t.Fatalf("expected unsupported file type error, got %v", err)
	}
}

func TestExtractCodeGoDefinitions(t *testing.T) {
	src := []byte(`package calc

import "fmt"

// Add sums two ints.
func Add(a, b int) int {
	fmt.Println(a, b)
	return a + b
}

type Pair struct {
	X, Y int
}

func (p Pair) Sum() int {
	return p.X + p.Y
}
`)
	blocks, method, err := extractCode(context.Background(), "calc.go", src)
	if err != nil {
		t.Fatalf("extractCode: %v", err)
	}
	if method != "treesitter" {
		t.Errorf("method = %q, want treesitter", method)
	}
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %+v", len(blocks), blocks)
	}

	if blocks[0].Type != blockPara || !strings.Contains(blocks[0].Text, "package calc") {
		t.Errorf("block 0 = %q type %q, want package preamble", blocks[0].Text, blocks[0].Type)
	}
	wantDefs := []struct {
		section  string
		fragment string
	}{
		{"Add", "func Add(a, b int) int"},
		{"Pair", "type Pair struct"},
		{"Sum", "func (p Pair) Sum() int"},
	}
	for i, want := range wantDefs {
		b := blocks[i+1]
		if b.Type != blockCode {
			t.Errorf("block %d type = %q, want code", i+1, b.Type)
		}
		if b.Section != want.section {
			t.Errorf("block %d section = %q, want %q", i+1, b.Section, want.section)
		}
		if !strings.Contains(b.Text, want.fragment) {
			t.Errorf("block %d text = %q, want fragment %q", i+1, b.Text, want.fragment)
		}
	}
}

func TestExtractCodeUnknownLanguageFallsBack(t *testing.T) {
	blocks, method, err := extractCode(context.Background(), "script.rb", []byte("puts 'hello world from ruby'"))
	if err != nil {
		t.Fatalf("extractCode: %v", err)
	}
	if method != "text" {
		t.Errorf("method = %q, want text fallback", method)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
}
