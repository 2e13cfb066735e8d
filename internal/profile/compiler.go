// Package profile compiles structured quiz input into the prose text that the
// embedding model vectorizes. Compilation is total and pure: the same answers
// always produce the same text, and unknown or absent values are omitted,
// never defaulted.
package profile

import "strings"

// Answers holds the dog matcher quiz input. All fields are optional; empty
// values contribute nothing to the compiled profile.
type Answers struct {
	LivingSituation       string   // apartment, house-small-yard, house-large-yard, farm
	ActivityLevel         string   // sedentary, moderate, active, very-active
	Experience            string   // first-time, some-experience, experienced
	SizePreference        string   // small, medium, large, any
	ExerciseCommitment    string   // 15min, 30-60min, 60-120min, 2plus-hours
	GroomingTolerance     string   // minimal, moderate, high
	SheddingTolerance     string   // minimal, moderate, heavy
	FamilySituation       string   // single, couple, kids-young, kids-older, other-pets
	TemperamentPreference []string // calm, playful, protective, independent, friendly, energetic
	TrainingCommitment    string   // basic, moderate, extensive
}

var livingPhrases = map[string]string{
	"apartment":        "Lives in an apartment, needs apartment-friendly breed",
	"house-small-yard": "Has a house with small yard, moderate space",
	"house-large-yard": "Has house with large yard, plenty of space",
	"farm":             "Lives on farm or acreage, lots of outdoor space",
}

var activityPhrases = map[string]string{
	"sedentary":   "Low activity lifestyle, prefers calm indoor activities",
	"moderate":    "Moderately active, regular walks and some outdoor time",
	"active":      "Very active lifestyle, enjoys hiking and outdoor activities",
	"very-active": "Extremely active, runs and hikes frequently",
}

var experiencePhrases = map[string]string{
	"first-time":      "First-time dog owner, needs trainable and easy-going breed",
	"some-experience": "Has some dog experience, comfortable with moderate training",
	"experienced":     "Experienced dog owner, comfortable with challenging breeds",
}

var exercisePhrases = map[string]string{
	"15min":       "Can provide 15 minutes of daily exercise, low exercise needs",
	"30-60min":    "Can provide 30-60 minutes daily exercise, moderate needs",
	"60-120min":   "Can provide 1-2 hours daily exercise, high energy tolerance",
	"2plus-hours": "Can provide 2+ hours daily exercise, very high energy tolerance",
}

var groomingPhrases = map[string]string{
	"minimal":  "Prefers low grooming needs, minimal maintenance",
	"moderate": "Can handle moderate grooming requirements",
	"high":     "Willing to commit to high grooming needs",
}

var sheddingPhrases = map[string]string{
	"minimal":  "Needs minimal shedding, hypoallergenic preferred",
	"moderate": "Can tolerate moderate shedding",
	"heavy":    "Okay with heavy shedding breeds",
}

var familyPhrases = map[string]string{
	"single":     "Single person household",
	"couple":     "Couple without children",
	"kids-young": "Family with young children, needs kid-friendly breed",
	"kids-older": "Family with older children",
	"other-pets": "Has other pets, needs pet-friendly breed",
}

var trainingPhrases = map[string]string{
	"basic":     "Looking for naturally well-behaved, easy to train",
	"moderate":  "Willing to invest in moderate training",
	"extensive": "Committed to extensive training, challenging breeds okay",
}

// Compile maps quiz answers to one descriptive paragraph.
func Compile(a Answers) string {
	parts := make([]string, 0, 10)

	appendPhrase(&parts, livingPhrases, a.LivingSituation)
	appendPhrase(&parts, activityPhrases, a.ActivityLevel)
	appendPhrase(&parts, experiencePhrases, a.Experience)

	if a.SizePreference != "" && a.SizePreference != "any" {
		parts = append(parts, "Prefers "+a.SizePreference+" sized dogs")
	}

	appendPhrase(&parts, exercisePhrases, a.ExerciseCommitment)
	appendPhrase(&parts, groomingPhrases, a.GroomingTolerance)
	appendPhrase(&parts, sheddingPhrases, a.SheddingTolerance)
	appendPhrase(&parts, familyPhrases, a.FamilySituation)

	if len(a.TemperamentPreference) > 0 {
		parts = append(parts, "Seeking "+strings.Join(a.TemperamentPreference, ", ")+" temperament")
	}

	appendPhrase(&parts, trainingPhrases, a.TrainingCommitment)

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

// CompileFreeText is the compilation for free-text input (contract bodies):
// identity with deterministic prefix truncation to bound embedding cost.
// Truncation is rune-safe so a multibyte character is never split.
func CompileFreeText(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func appendPhrase(parts *[]string, table map[string]string, key string) {
	if phrase, ok := table[key]; ok {
		*parts = append(*parts, phrase)
	}
}
