// Package costs provides cost calculation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on published 2026 rates and can be overridden via environment variables.
var (
	// TTSCentsPerThousandBytes is the cost per 1K UTF-8 bytes of synthesized text.
	// Default: $15/1M bytes = 1.5 cents/1K bytes
	TTSCentsPerThousandBytes = getEnvFloat("COST_TTS_CENTS_PER_1K_BYTES", 1.5)

	// ASRCentsPerMinute is the cost per minute of transcribed audio.
	// Default: $0.36/hour = 0.6 cents/min
	ASRCentsPerMinute = getEnvFloat("COST_ASR_CENTS_PER_MIN", 0.6)

	// OpenAICentsPerThousandInputTokens is the cost per 1K input tokens for GPT-4o-mini.
	// Default: $0.15/1M = 0.015 cents/1K tokens
	OpenAICentsPerThousandInputTokens = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015)

	// OpenAICentsPerThousandOutputTokens is the cost per 1K output tokens for GPT-4o-mini.
	// Default: $0.60/1M = 0.06 cents/1K tokens
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06)
)

// UsageMetrics contains the raw metrics from one speech session used for
// cost calculation.
type UsageMetrics struct {
	TTSTextBytes    int     // UTF-8 bytes of text sent to synthesis
	ASRSeconds      float64 // Audio seconds processed by transcription
	LLMInputTokens  int     // Tokens sent to the LLM producer
	LLMOutputTokens int     // Tokens received from the LLM producer
}

// UsageCosts contains the calculated costs for a session in cents.
type UsageCosts struct {
	TTSCostCents   int
	ASRCostCents   int
	LLMCostCents   int
	TotalCostCents int
}

// CalculateUsageCosts computes the costs for a session based on usage metrics.
func CalculateUsageCosts(m UsageMetrics) UsageCosts {
	ttsCents := (float64(m.TTSTextBytes) / 1000.0) * TTSCentsPerThousandBytes

	asrMinutes := m.ASRSeconds / 60.0
	asrCents := asrMinutes * ASRCentsPerMinute

	llmInputCents := (float64(m.LLMInputTokens) / 1000.0) * OpenAICentsPerThousandInputTokens
	llmOutputCents := (float64(m.LLMOutputTokens) / 1000.0) * OpenAICentsPerThousandOutputTokens

	costs := UsageCosts{
		TTSCostCents: roundToInt(ttsCents),
		ASRCostCents: roundToInt(asrCents),
		LLMCostCents: roundToInt(llmInputCents + llmOutputCents),
	}
	costs.TotalCostCents = costs.TTSCostCents + costs.ASRCostCents + costs.LLMCostCents

	return costs
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
