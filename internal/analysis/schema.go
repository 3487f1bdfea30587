package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
)

// Prompt is sent alongside every slide image.
const Prompt = `Please analyze the provided image of a liver tissue slide. Identify key pathological features and provide a structured report. Your analysis should include:
1. An overall impression.
2. A list of key findings (e.g., steatosis, inflammation, fibrosis, ballooning, Mallory-Denk bodies).
3. A differential diagnosis based on the findings.
4. Recommendations for further tests or investigations.
Provide your response in the requested JSON format.`

// ResponseSchema constrains the model output to an AnalysisResult. It uses
// the OpenAPI subset accepted by the Gemini generationConfig.
var ResponseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"overallImpression": map[string]any{
			"type":        "STRING",
			"description": "A brief, high-level summary of the overall pathological picture of the liver tissue.",
		},
		"keyFindings": map[string]any{
			"type":        "ARRAY",
			"description": "A list of specific pathological features observed in the slide.",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"finding": map[string]any{
						"type":        "STRING",
						"description": "The specific pathological feature observed (e.g., Steatosis, Lobular Inflammation, Fibrosis, Ballooning degeneration, Mallory-Denk bodies).",
					},
					"description": map[string]any{
						"type":        "STRING",
						"description": "A detailed description of the observed feature, including location, severity, and characteristics.",
					},
				},
				"required": []string{"finding", "description"},
			},
		},
		"differentialDiagnosis": map[string]any{
			"type":        "STRING",
			"description": "A differential diagnosis based on the key findings. Correlate findings to possible conditions like NAFLD, NASH, alcoholic liver disease, or viral hepatitis.",
		},
		"recommendations": map[string]any{
			"type":        "ARRAY",
			"items":       map[string]any{"type": "STRING"},
			"description": "Recommendations for further tests, special stains (e.g., Trichrome, Reticulin), immunohistochemistry, or clinical correlation needed to confirm the diagnosis.",
		},
	},
	"required": []string{"overallImpression", "keyFindings", "differentialDiagnosis", "recommendations"},
}

// wireResult mirrors AnalysisResult with pointers so absent and null fields
// can be told apart from empty ones.
type wireResult struct {
	OverallImpression     *string        `json:"overallImpression"`
	KeyFindings           *[]wireFinding `json:"keyFindings"`
	DifferentialDiagnosis *string        `json:"differentialDiagnosis"`
	Recommendations       *[]string      `json:"recommendations"`
}

type wireFinding struct {
	Finding     *string `json:"finding"`
	Description *string `json:"description"`
}

// decodeResult parses model output and rejects anything that does not carry
// all four fields.
func decodeResult(text string) (entity.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	var w wireResult
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return entity.AnalysisResult{}, fmt.Errorf("decode result: %w", err)
	}
	var missing []string
	if w.OverallImpression == nil {
		missing = append(missing, "overallImpression")
	}
	if w.KeyFindings == nil {
		missing = append(missing, "keyFindings")
	}
	if w.DifferentialDiagnosis == nil {
		missing = append(missing, "differentialDiagnosis")
	}
	if w.Recommendations == nil {
		missing = append(missing, "recommendations")
	}
	if len(missing) > 0 {
		return entity.AnalysisResult{}, fmt.Errorf("result missing %s", strings.Join(missing, ", "))
	}

	out := entity.AnalysisResult{
		OverallImpression:     *w.OverallImpression,
		DifferentialDiagnosis: *w.DifferentialDiagnosis,
		KeyFindings:           make([]entity.Finding, 0, len(*w.KeyFindings)),
		Recommendations:       append([]string{}, *w.Recommendations...),
	}
	for i, f := range *w.KeyFindings {
		if f.Finding == nil || f.Description == nil {
			return entity.AnalysisResult{}, fmt.Errorf("keyFindings[%d] incomplete", i)
		}
		out.KeyFindings = append(out.KeyFindings, entity.Finding{Finding: *f.Finding, Description: *f.Description})
	}
	return out, nil
}
