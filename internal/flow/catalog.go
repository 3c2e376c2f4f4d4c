// filepath: internal/flow/catalog.go
package flow

import "github.com/BTreeMap/HelpLine/internal/models"

var categories = []models.Category{
	{ID: models.CategoryHardware, Label: "Hardware", Description: "Computadores, impressoras e outros equipamentos.", TicketName: models.TicketCategoryHardware},
	{ID: models.CategorySoftware, Label: "Software", Description: "Aplicativos corporativos e sistemas internos.", TicketName: models.TicketCategorySoftware},
	{ID: models.CategoryRede, Label: "Rede", Description: "Wi-Fi, VPN, links e queda de conexao.", TicketName: models.TicketCategoryRede},
	{ID: models.CategoryAcesso, Label: "Acesso/Security", Description: "Senhas, MFA, bloqueios e perfis.", TicketName: models.TicketCategoryAcesso},
	{ID: models.CategoryInfra, Label: "Infraestrutura/Servicos", Description: "Servidores, banco de dados, cloud e backups.", TicketName: models.TicketCategorySO},
	{ID: models.CategoryOutros, Label: "Outros", Description: "Quando nao encaixar nas opcoes acima.", TicketName: models.TicketCategoryOutros},
}

// Categories returns the support categories in display order.
func Categories() []models.Category {
	out := make([]models.Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryByID looks up a category by its id.
func CategoryByID(id models.CategoryID) (models.Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return models.Category{}, false
}
