// filepath: internal/flow/feedback.go
package flow

// DefaultFeedbackThreshold is the number of consecutive "not resolved"
// signals that trigger an automatic escalation.
const DefaultFeedbackThreshold = 2

// FeedbackPolicy decides when negative feedback on bot answers escalates the chat.
type FeedbackPolicy struct {
	// Threshold of consecutive misses. Zero means DefaultFeedbackThreshold;
	// a negative value disables automatic escalation.
	Threshold int
}

// ShouldEscalate reports whether misses consecutive negative signals reach the threshold.
func (p FeedbackPolicy) ShouldEscalate(misses int) bool {
	t := p.Threshold
	if t == 0 {
		t = DefaultFeedbackThreshold
	}
	if t < 0 {
		return false
	}
	return misses >= t
}
