// Package models defines flow type definitions to avoid circular imports.
package models

// TriageState is the derived state of a triage session.
type TriageState string

// Triage states, in the order a session normally walks them.
const (
	StateAwaitingConsent  TriageState = "AWAITING_CONSENT"
	StateAwaitingCategory TriageState = "AWAITING_CATEGORY"
	StateAwaitingIssue    TriageState = "AWAITING_ISSUE"
	StateAnsweringPrompts TriageState = "ANSWERING_PROMPTS"
	StateFlowComplete     TriageState = "FLOW_COMPLETE"
)

// String implements fmt.Stringer.
func (s TriageState) String() string {
	return string(s)
}
