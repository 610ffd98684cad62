// Package report renders the flat-text technical risk dossier.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

const (
	rule           = "=================================================="
	thinRule       = "--------------------------------------------------"
	fallbackAuthor = "System Administrator"
	fallbackRole   = "Engineer"
)

// GovernanceStandards are cited in every report.
var GovernanceStandards = []string{
	"API RP 754: Process Safety Performance Indicators",
	"ISO 31000: Risk Management Framework",
	"NR-13: Pressurized Equipment Compliance",
}

// Cell is a selected matrix position.
type Cell struct {
	Probability int `json:"probability"`
	Severity    int `json:"severity"`
}

// StatusCount is one line of the global MOC overview.
type StatusCount struct {
	Label string
	Count int
}

// Input is everything a report is rendered from. A nil Selection produces
// the global overview.
type Input struct {
	Selection   *Cell
	Author      string
	Role        string
	GeneratedAt time.Time
	MOCCounts   []StatusCount
}

// Report is a rendered dossier.
type Report struct {
	Filename    string
	Body        string
	Digest      string
	Assessment  *risk.Assessment
	GeneratedAt time.Time
}

// Render builds the report text. The digest is the SHA-256 of everything
// above the signature block, so equal inputs give equal digests.
func Render(in Input) (Report, error) {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now()
	}
	in.GeneratedAt = in.GeneratedAt.UTC()

	var assessment *risk.Assessment
	if in.Selection != nil {
		a, err := risk.Classify(in.Selection.Probability, in.Selection.Severity)
		if err != nil {
			return Report{}, err
		}
		assessment = &a
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	section := func(title string) {
		b.WriteByte('\n')
		line("%s", title)
		line("%s", thinRule)
	}

	line("%s", rule)
	line("MOC STUDIO | TECHNICAL RISK ASSESSMENT REPORT")
	line("%s", rule)
	line("Generated on: %s", in.GeneratedAt.Format(time.RFC3339))
	line("Authorized by: %s", orDefault(in.Author, fallbackAuthor))
	line("Clearance Role: %s", orDefault(in.Role, fallbackRole))

	section("REPORT PARAMETERS:")
	if assessment != nil {
		line("Selected Probability (P): %d", assessment.Probability)
		line("Selected Severity (S): %d", assessment.Severity)
		line("Composite Risk Score: %d", assessment.Score)
		line("Risk Classification: %s", strings.ToUpper(assessment.Tier.String()))
	} else {
		line("Scope: Global Matrix Infrastructure Overview")
	}

	if assessment == nil && len(in.MOCCounts) > 0 {
		section("MOC PORTFOLIO BY STATUS:")
		total := 0
		for _, c := range in.MOCCounts {
			line("* %s: %d", c.Label, c.Count)
			total += c.Count
		}
		line("Total: %d", total)
	}

	section("GOVERNANCE STANDARDS:")
	for _, s := range GovernanceStandards {
		line("* %s", s)
	}

	section("REQUIRED SIGN-OFFS BASED ON SCORE:")
	line("%s", signOff(assessment))

	digest := sha256.Sum256([]byte(b.String()))
	hexDigest := hex.EncodeToString(digest[:])

	section("DIGITAL SIGNATURE:")
	line("VERIFIED BY MOC STUDIO GOVERNANCE ENGINE")
	line("HASH: %s", strings.ToUpper(hexDigest))
	line("%s", rule)

	return Report{
		Filename:    Filename(in.Selection, in.GeneratedAt),
		Body:        b.String(),
		Digest:      hexDigest,
		Assessment:  assessment,
		GeneratedAt: in.GeneratedAt,
	}, nil
}

// Filename is the download name of a report.
func Filename(sel *Cell, at time.Time) string {
	ms := at.UnixMilli()
	if sel == nil {
		return fmt.Sprintf("MOC_Risk_Report_Global_%d.txt", ms)
	}
	return fmt.Sprintf("MOC_Risk_Report_Score_%d_%d.txt", sel.Probability*sel.Severity, ms)
}

func signOff(a *risk.Assessment) string {
	if a == nil {
		return "[MANAGED] STANDARD OPERATIONAL CLEARANCE"
	}
	switch a.Tier {
	case risk.TierExtreme:
		return "[CRITICAL] REQUIRES HSE DIRECTOR & TECHNICAL MANAGER APPROVAL"
	case risk.TierHigh:
		return "[HIGH] REQUIRES FORMAL PEER REVIEW & DEPT HEAD APPROVAL"
	case risk.TierMedium:
		return "[MANAGED] STANDARD SUPERVISORY CLEARANCE"
	}
	return "[MANAGED] STANDARD OPERATIONAL CLEARANCE"
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
