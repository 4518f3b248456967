package usecase

import (
	"fmt"
	"strings"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

const advisorInstruction = `Act as an AI agricultural advisor for farmers in Madhya Pradesh.
Focus on MP agro-climatic zones: Malwa Plateau, Bundelkhand, Vindhya Plateau, Mahakoshal, and Gwalior-Chambal.
Provide localized, clear, and actionable advice.`

// deepThinkingBudget is the thinking token budget for reasoning-heavy calls.
const deepThinkingBudget int32 = 32768

func replyIn(lang entities.Language) string {
	if lang == entities.LanguageHindi {
		return "Respond in simple, clear Hindi (हिन्दी)."
	}
	return "Respond in English."
}

// districtProfile describes a known district for the prompt; unknown ones get nothing.
func districtProfile(name string) string {
	d, ok := entities.LookupDistrict(name)
	if !ok {
		return ""
	}
	return fmt.Sprintf("District profile: %s lies in the %s region, soil is %s, major crops are %s.",
		d.Name, d.Region, d.SoilType, strings.Join(d.MajorCrops, ", "))
}

func joinLines(lines ...string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// LiveInstruction is the system instruction for a live voice call.
func LiveInstruction(lang entities.Language) string {
	return joinLines(advisorInstruction, "You are on a voice call. Keep answers short and speak naturally.", "Use "+lang.Name()+".")
}
