package report

import (
	"fmt"
	"strings"

	account "github.com/ovaphlow/pitchfork/service-pathology/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
)

const transcriptDateLayout = "2006-01-02 15:04 MST"

// Transcript renders rec as a clipboard-ready plain-text report prepared by
// profile.
func Transcript(profile account.Profile, rec entity.Record) string {
	var b strings.Builder
	r := rec.Result

	b.WriteString("LIVER PATHOLOGY REPORT\n")
	fmt.Fprintf(&b, "Prepared by: %s\n", preparer(profile))
	if profile.Hospital != "" {
		fmt.Fprintf(&b, "Hospital: %s\n", profile.Hospital)
	}
	if profile.Qualifications != "" {
		fmt.Fprintf(&b, "Qualifications: %s\n", profile.Qualifications)
	}
	fmt.Fprintf(&b, "Date: %s\n", rec.Date.Time().UTC().Format(transcriptDateLayout))
	fmt.Fprintf(&b, "Report ID: %s\n", rec.ID)

	section(&b, "Overall Impression")
	b.WriteString(r.OverallImpression)
	b.WriteString("\n")

	section(&b, "Key Findings")
	if len(r.KeyFindings) == 0 {
		b.WriteString("None reported.\n")
	}
	for i, f := range r.KeyFindings {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, f.Finding, f.Description)
	}

	section(&b, "Differential Diagnosis")
	b.WriteString(r.DifferentialDiagnosis)
	b.WriteString("\n")

	section(&b, "Recommendations")
	if len(r.Recommendations) == 0 {
		b.WriteString("None.\n")
	}
	for _, line := range r.Recommendations {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	return b.String()
}

func preparer(p account.Profile) string {
	switch {
	case p.Name == "" && p.Title == "":
		return p.Email
	case p.Title == "":
		return p.Name
	case p.Name == "":
		return p.Title
	}
	return p.Name + ", " + p.Title
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}
