package prompt

import (
	"fmt"
	"strconv"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a digital forensics assistant reviewing the verdict of an AI-generated image detector. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Do not overturn the detector's verdict; explain which visible cues are consistent or inconsistent with it.
- signals is an array of short phrases naming concrete visual cues (skin texture, eye reflections, hair edges, lighting, background warping, text artifacts).
- Keep summary under 60 words.
- caveat states what cannot be judged from a single image, if anything.

Schema (example with empty values):
{
  "summary": "<string>",
  "signals": ["<string>"],
  "caveat": "<string>"
}`
}

// GetUserPrompt describes the verdict to explain.
func GetUserPrompt(mode string, isFake bool, confidence float64) string {
	verdict := "a real photograph"
	if isFake {
		verdict = "AI-generated"
	}
	pct := strconv.FormatFloat(confidence*100, 'f', 1, 64)
	return fmt.Sprintf("The %s detector classified the attached image as %s with %s%% confidence. Explain the verdict and respond with the JSON per schema.", mode, verdict, pct)
}
