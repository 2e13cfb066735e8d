package match

import (
	"sort"
	"strings"

	"github.com/kindred-ai/matchengine/internal/domain/match"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
	"github.com/kindred-ai/matchengine/internal/index"
	"github.com/kindred-ai/matchengine/internal/profile"
)

// Metadata keys the explainer reads from breed records. Records missing a key
// simply skip that rule; explanation never fails a match.
const (
	keySize           = "size_category"
	keyApartment      = "apartment_friendly"
	keyGoodWithKids   = "good_with_kids"
	keyGoodWithPets   = "good_with_pets"
	keyEnergy         = "energy_level"
	keyShedding       = "shedding_level"
	keyHypoallergenic = "hypoallergenic"
	keyTemperament    = "temperament"
	keyTrainability   = "trainability"
)

// energyFit maps an activity level to the breed energy levels that suit it.
var energyFit = map[string][]string{
	"sedentary":   {"Low"},
	"moderate":    {"Low", "Medium"},
	"active":      {"Medium", "High"},
	"very-active": {"High", "Very High"},
}

// sheddingFit maps a shedding tolerance to the breed shedding levels it accepts.
var sheddingFit = map[string][]string{
	"minimal":  {"Minimal", "Low"},
	"moderate": {"Minimal", "Low", "Moderate"},
	"heavy":    {"Minimal", "Low", "Moderate", "Heavy"},
}

// Reasons runs the fixed rule checklist against one record's metadata and
// returns human-readable reason strings in rule order. Pure and deterministic.
func Reasons(a profile.Answers, meta metadata.Map) []string {
	var reasons []string

	if a.SizePreference != "" && a.SizePreference != "any" {
		if size, ok := meta.GetString(keySize); ok && strings.EqualFold(size, a.SizePreference) {
			reasons = append(reasons, "Perfect "+a.SizePreference+" size match")
		}
	}

	if a.LivingSituation == "apartment" {
		if ok, _ := meta.GetBool(keyApartment); ok {
			reasons = append(reasons, "Apartment-friendly breed")
		}
	}

	if strings.Contains(a.FamilySituation, "kids") {
		if ok, _ := meta.GetBool(keyGoodWithKids); ok {
			reasons = append(reasons, "Great with children")
		}
	}

	if strings.Contains(a.FamilySituation, "other-pets") {
		if ok, _ := meta.GetBool(keyGoodWithPets); ok {
			reasons = append(reasons, "Gets along with other pets")
		}
	}

	if energy, ok := meta.GetString(keyEnergy); ok && contains(energyFit[a.ActivityLevel], energy) {
		reasons = append(reasons, energy+" energy matches your lifestyle")
	}

	if shedding, ok := meta.GetString(keyShedding); ok && contains(sheddingFit[a.SheddingTolerance], shedding) {
		if hypo, _ := meta.GetBool(keyHypoallergenic); hypo && a.SheddingTolerance == "minimal" {
			reasons = append(reasons, "Hypoallergenic breed")
		} else {
			reasons = append(reasons, shedding+" shedding fits your tolerance")
		}
	}

	if overlap := temperamentOverlap(a.TemperamentPreference, meta); len(overlap) > 0 {
		reasons = append(reasons, "Matches your desired "+strings.Join(overlap, ", ")+" temperament")
	}

	if a.Experience == "first-time" {
		if train, ok := meta.GetString(keyTrainability); ok && (train == "High" || train == "Very High") {
			reasons = append(reasons, "Highly trainable, great for first-time owners")
		}
	}

	return reasons
}

// temperamentOverlap intersects preferences with the record's temperament list,
// case-insensitively, preserving the user's preference order.
func temperamentOverlap(prefs []string, meta metadata.Map) []string {
	traits, ok := meta.GetList(keyTemperament)
	if !ok || len(prefs) == 0 {
		return nil
	}

	traitSet := make(map[string]struct{}, len(traits))
	for _, t := range traits {
		traitSet[strings.ToLower(t)] = struct{}{}
	}

	var overlap []string
	for _, p := range prefs {
		if _, hit := traitSet[strings.ToLower(p)]; hit {
			overlap = append(overlap, strings.ToLower(p))
		}
	}
	return overlap
}

// rerankBonus is the adjustment added per satisfied reason.
const rerankBonus = 0.01

// rerank orders hits by similarity plus a bounded reason bonus and assigns
// 1-based ranks. The total bonus is capped at epsilon/2 so two hits separated
// by more than epsilon in raw similarity can never swap: re-ranking resolves
// near-ties only.
func rerank(a profile.Answers, hits []index.Hit, epsilon float64) []match.Result {
	type scored struct {
		result   match.Result
		adjusted float64
	}

	maxBonus := epsilon / 2
	entries := make([]scored, 0, len(hits))
	for _, h := range hits {
		reasons := Reasons(a, h.Record.Metadata())
		bonus := float64(len(reasons)) * rerankBonus
		if bonus > maxBonus {
			bonus = maxBonus
		}
		entries = append(entries, scored{
			result: match.Result{
				RecordID:   h.Record.ID(),
				Similarity: h.Similarity,
				Reasons:    reasons,
			},
			adjusted: h.Similarity + bonus,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].adjusted != entries[j].adjusted {
			return entries[i].adjusted > entries[j].adjusted
		}
		return entries[i].result.RecordID < entries[j].result.RecordID
	})

	results := make([]match.Result, len(entries))
	for i, e := range entries {
		e.result.Rank = i + 1
		results[i] = e.result
	}
	return results
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
