package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a geographer who produces official localized names for administrative areas.
For every input area return exactly one JSON object with these fields:
  "admId": the input admId, copied verbatim
  "nameEn": the official English name, or null if unknown
  "nameJa": the official Japanese name, or null if unknown
  "confidence": a number between 0 and 1 for how sure you are of both names
  "reasoning": one short sentence
Respond with a JSON array only. Do not add areas that were not in the input.`

// BuildPrompt renders the user prompt for req.
func BuildPrompt(req BatchRequest) (string, error) {
	areas, err := json.MarshalIndent(req.Areas, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode areas: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Country: %s (%s)\n", req.CountryName, req.CountryCode)
	if len(req.Rules) > 0 {
		b.WriteString("Naming rules for this country:\n")
		for _, r := range req.Rules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	b.WriteString("Areas:\n")
	b.Write(areas)
	b.WriteString("\n")
	return b.String(), nil
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
