package escalation

import (
	"strings"

	"github.com/BTreeMap/HelpLine/internal/flow"
	"github.com/BTreeMap/HelpLine/internal/models"
)

// Ticket draft limits and defaults
const (
	// MaxTitleLength is the maximum ticket title length in characters
	MaxTitleLength = 120
	// MaxDescriptionLength is the maximum ticket description length in characters
	MaxDescriptionLength = 8000
	// DefaultTitle is used when the user never typed free text
	DefaultTitle = "Solicitacao de suporte"
	// DescriptionHeader prefixes the transcript in the ticket description
	DescriptionHeader = "Resumo da conversa com o bot:\n"
)

// BuildDraft assembles the ticket draft of a session snapshot. The requester
// is filled in after the identity lookup.
func BuildDraft(snap flow.Snapshot, categoryName string, level models.Level) models.TicketDraft {
	title := strings.TrimSpace(snap.LastFreeText)
	if title == "" {
		title = DefaultTitle
	}
	return models.TicketDraft{
		Title:        truncate(title, MaxTitleLength),
		Description:  truncate(DescriptionHeader+snap.History, MaxDescriptionLength),
		CategoryName: categoryName,
		Level:        level,
		PriorityID:   models.PriorityAlta,
		Origin:       models.OriginMobile,
		LastUserText: snap.LastFreeText,
		History:      snap.History,
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
