package escalation

import (
	"strings"

	"github.com/BTreeMap/HelpLine/internal/flow"
	"github.com/BTreeMap/HelpLine/internal/models"
)

// keywordRules are evaluated in order; the first rule with a matching keyword wins.
var keywordRules = []struct {
	category string
	keywords []string
}{
	{models.TicketCategoryHardware, []string{"impressora", "monitor", "teclado"}},
	{models.TicketCategoryRede, []string{"wi-fi", "rede", "vpn"}},
	{models.TicketCategorySO, []string{"windows", "linux", "sistema operacional"}},
	{models.TicketCategoryAcesso, []string{"senha", "acesso", "login"}},
	{models.TicketCategorySoftware, []string{"sistema", "aplicativo", "software"}},
}

// Classify maps free text to a ticket category name by keyword, defaulting to Outros.
func Classify(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return models.TicketCategoryOutros
}

// CategoryName prefers the selected category's ticket name over keyword classification.
func CategoryName(snap flow.Snapshot) string {
	if snap.Category != nil && snap.Category.TicketName != "" {
		return snap.Category.TicketName
	}
	return Classify(snap.LastFreeText)
}

// LevelFor returns the support tier of a ticket category.
func LevelFor(categoryName string) models.Level {
	switch categoryName {
	case models.TicketCategoryHardware, models.TicketCategoryRede:
		return models.LevelN2
	case models.TicketCategorySoftware, models.TicketCategorySO:
		return models.LevelN3
	default:
		return models.LevelN1
	}
}
