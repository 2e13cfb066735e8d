package profile

import (
	"strings"
	"testing"
)

func TestCompile_Deterministic(t *testing.T) {
	a := Answers{
		LivingSituation:       "apartment",
		SizePreference:        "small",
		TemperamentPreference: []string{"calm", "friendly"},
	}

	first := Compile(a)
	second := Compile(a)
	if first != second {
		t.Fatalf("compile not pure:\n%q\n%q", first, second)
	}
}

func TestCompile_KnownFields(t *testing.T) {
	a := Answers{
		LivingSituation:       "apartment",
		ActivityLevel:         "moderate",
		Experience:            "first-time",
		SizePreference:        "small",
		ExerciseCommitment:    "30-60min",
		GroomingTolerance:     "minimal",
		SheddingTolerance:     "minimal",
		FamilySituation:       "kids-young",
		TemperamentPreference: []string{"calm"},
		TrainingCommitment:    "basic",
	}

	text := Compile(a)

	for _, want := range []string{
		"apartment-friendly",
		"Moderately active",
		"First-time dog owner",
		"Prefers small sized dogs",
		"30-60 minutes",
		"low grooming",
		"hypoallergenic",
		"kid-friendly",
		"Seeking calm temperament",
		"easy to train",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("compiled profile missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, ".") {
		t.Errorf("profile should end with a period: %q", text)
	}
}

func TestCompile_OmitsUnknownAndMissing(t *testing.T) {
	a := Answers{
		LivingSituation: "castle", // unknown value, silently skipped
		SizePreference:  "any",    // "any" contributes nothing
	}
	if got := Compile(a); got != "" {
		t.Fatalf("expected empty profile, got %q", got)
	}
}

func TestCompile_Empty(t *testing.T) {
	if got := Compile(Answers{}); got != "" {
		t.Fatalf("empty answers should compile to empty string, got %q", got)
	}
}

func TestCompileFreeText_Truncation(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"short text unchanged", "short", 500, "short"},
		{"exact limit unchanged", "abcde", 5, "abcde"},
		{"long text truncated", "abcdefgh", 5, "abcde"},
		{"zero limit disables truncation", "abcdefgh", 0, "abcdefgh"},
		{"multibyte not split", "日本語テキスト", 3, "日本語"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompileFreeText(tt.text, tt.limit); got != tt.want {
				t.Errorf("CompileFreeText(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCompileFreeText_Deterministic(t *testing.T) {
	text := strings.Repeat("clause ", 200)
	if CompileFreeText(text, 500) != CompileFreeText(text, 500) {
		t.Fatal("truncation not deterministic")
	}
}
