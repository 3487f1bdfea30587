package entity

// Finding is one observed pathological feature.
type Finding struct {
	Finding     string `json:"finding"`
	Description string `json:"description"`
}

// AnalysisResult is the structured report returned by the model.
type AnalysisResult struct {
	OverallImpression     string    `json:"overallImpression"`
	KeyFindings           []Finding `json:"keyFindings"`
	DifferentialDiagnosis string    `json:"differentialDiagnosis"`
	Recommendations       []string  `json:"recommendations"`
}

// Clone returns a deep copy. Nil slices come back empty so the JSON form
// never carries null lists.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	out.KeyFindings = make([]Finding, len(r.KeyFindings))
	copy(out.KeyFindings, r.KeyFindings)
	out.Recommendations = make([]string, len(r.Recommendations))
	copy(out.Recommendations, r.Recommendations)
	return out
}

// Record is one persisted analysis. ID and Date never change after creation.
type Record struct {
	ID       string         `json:"id"`
	Date     Timestamp      `json:"date"`
	ImageURL string         `json:"imageUrl"`
	Result   AnalysisResult `json:"result"`
}
