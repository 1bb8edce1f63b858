// ===============================
// File: internal/risk/gate.go
// ===============================
package risk

import "fmt"

// GateDecision is the paper-trading admission verdict for one report.
type GateDecision struct {
	Allow    bool     `json:"allow"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Gate applies the downstream admission policy:
// critical flag, riskScore > 75, or a confident critical pattern all
// reject; a confident high-severity pattern warns but allows.
func Gate(report RiskReport) GateDecision {
	decision := GateDecision{Allow: true}

	for _, f := range report.Flags {
		if f.Severity == SeverityCritical {
			decision.Allow = false
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("critical flag %s: %s", f.Type, f.Message))
		}
	}

	if report.RiskScore > 75 {
		decision.Allow = false
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("risk score %d above threshold 75", report.RiskScore))
	}

	for _, m := range report.PatternMatches {
		switch {
		case m.Severity == SeverityCritical && m.Confidence > 0.7:
			decision.Allow = false
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("pattern %q matched with confidence %.2f", m.PatternName, m.Confidence))
		case m.Severity == SeverityHigh && m.Confidence > 0.6:
			decision.Warnings = append(decision.Warnings,
				fmt.Sprintf("pattern %q matched with confidence %.2f", m.PatternName, m.Confidence))
		}
	}

	return decision
}
