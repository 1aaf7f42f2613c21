package providers

import (
	"strings"
)

// Canonical answer-engine names stored on response_analysis.answer_engine
const (
	EngineChatGPT    = "chatgpt"
	EnginePerplexity = "perplexity"
	EngineGemini     = "gemini"
	EngineAIOverview = "aioverview"
	EngineOpenAI     = "openai"
	EngineAnthropic  = "anthropic"
)

// NormalizeEngineName maps a model or engine label to its canonical engine name.
// Unrecognized labels are returned trimmed and lowercased so new engines still persist.
func NormalizeEngineName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return ""
	}

	// ChatGPT must be checked before the generic gpt pattern
	if strings.Contains(lower, "chatgpt") {
		return EngineChatGPT
	}

	if strings.Contains(lower, "perplexity") || strings.HasPrefix(lower, "sonar") {
		return EnginePerplexity
	}

	if strings.Contains(lower, "aioverview") || strings.Contains(lower, "ai_overview") ||
		strings.Contains(lower, "ai overview") || strings.Contains(lower, "ai-overview") {
		return EngineAIOverview
	}

	if strings.Contains(lower, "gemini") {
		return EngineGemini
	}

	if strings.Contains(lower, "gpt") || strings.Contains(lower, "4.1") || strings.Contains(lower, "openai") {
		return EngineOpenAI
	}

	if strings.Contains(lower, "claude") || strings.Contains(lower, "sonnet") ||
		strings.Contains(lower, "opus") || strings.Contains(lower, "haiku") || strings.Contains(lower, "anthropic") {
		return EngineAnthropic
	}

	return lower
}

// IsKnownEngine reports whether name normalizes to one of the canonical engines.
func IsKnownEngine(name string) bool {
	switch NormalizeEngineName(name) {
	case EngineChatGPT, EnginePerplexity, EngineGemini, EngineAIOverview, EngineOpenAI, EngineAnthropic:
		return true
	}
	return false
}
