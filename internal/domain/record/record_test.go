package record

import (
	"strings"
	"testing"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
)

func TestNew_Valid(t *testing.T) {
	meta := metadata.Map{"size_category": metadata.String("Small")}
	rec, err := New("beagle", domain.CorpusBreeds, "A merry little hound.", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID() != "beagle" || rec.Corpus() != domain.CorpusBreeds {
		t.Fatalf("unexpected record: %s / %s", rec.ID(), rec.Corpus())
	}
	if rec.EmbedModel() != "" || len(rec.Vector()) != 0 {
		t.Fatal("new record must not carry an embedding")
	}

	// The constructor clones metadata; mutating the input must not leak in.
	meta["size_category"] = metadata.String("Large")
	if size, _ := rec.Metadata().GetString("size_category"); size != "Small" {
		t.Fatalf("metadata not cloned: %q", size)
	}
}

func TestNew_Invalid(t *testing.T) {
	longID := strings.Repeat("a", 257)
	bigText := strings.Repeat("x", MaxTextSize+1)

	cases := []struct {
		name   string
		id     string
		corpus domain.Corpus
		text   string
		meta   metadata.Map
	}{
		{"empty id", "", domain.CorpusBreeds, "text", nil},
		{"id too long", longID, domain.CorpusBreeds, "text", nil},
		{"id with spaces", "bad id", domain.CorpusBreeds, "text", nil},
		{"id with slash", "bad/id", domain.CorpusBreeds, "text", nil},
		{"unknown corpus", "ok", domain.Corpus("mystery"), "text", nil},
		{"empty text", "ok", domain.CorpusBreeds, "", nil},
		{"text too large", "ok", domain.CorpusBreeds, bigText, nil},
		{"empty metadata key", "ok", domain.CorpusBreeds, "text", metadata.Map{"": metadata.String("v")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.corpus, tc.text, tc.meta); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNew_IDAllowsUnderscoresAndHyphens(t *testing.T) {
	if _, err := New("german_shepherd-2", domain.CorpusBreeds, "text", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithEmbedding(t *testing.T) {
	rec, err := New("beagle", domain.CorpusBreeds, "text", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	embedded := rec.WithEmbedding([]float32{0.1, 0.2}, "text-embedding-3-small")
	if embedded.EmbedModel() != "text-embedding-3-small" || len(embedded.Vector()) != 2 {
		t.Fatalf("embedding not applied: %q / %v", embedded.EmbedModel(), embedded.Vector())
	}
	if len(rec.Vector()) != 0 {
		t.Fatal("WithEmbedding must not mutate the receiver")
	}
}

func TestWithSourceTag(t *testing.T) {
	rec, err := New("beagle", domain.CorpusBreeds, "text", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tagged := rec.WithSourceTag("seed:breeds")
	if tagged.SourceTag() != "seed:breeds" {
		t.Fatalf("unexpected tag: %q", tagged.SourceTag())
	}
	if rec.SourceTag() != "" {
		t.Fatal("WithSourceTag must not mutate the receiver")
	}
}
