// filepath: internal/flow/registry.go
package flow

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HelpLine/internal/models"
)

// Registry maps every category to its triage flow.
type Registry struct {
	categories []models.Category
	flows      map[models.CategoryID]models.Flow
}

// NewRegistry validates that categories and flows describe each other exactly.
// Every category must have a flow and every flow must belong to a category.
func NewRegistry(cats []models.Category, flows map[models.CategoryID]models.Flow) (*Registry, error) {
	known := make(map[models.CategoryID]bool, len(cats))
	for _, c := range cats {
		if known[c.ID] {
			return nil, fmt.Errorf("category %q: %w", c.ID, models.ErrDuplicateCategory)
		}
		known[c.ID] = true
		f, ok := flows[c.ID]
		if !ok {
			return nil, fmt.Errorf("category %q: %w", c.ID, models.ErrMissingFlow)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("flow %q: %w", c.ID, err)
		}
	}
	for id := range flows {
		if !known[id] {
			return nil, fmt.Errorf("flow %q: %w", id, models.ErrFlowForUnknownCategory)
		}
	}

	r := &Registry{
		categories: append([]models.Category(nil), cats...),
		flows:      make(map[models.CategoryID]models.Flow, len(flows)),
	}
	for id, f := range flows {
		r.flows[id] = f
	}
	slog.Debug("Registry.NewRegistry: catalog validated", "categories", len(cats))
	return r, nil
}

// DefaultRegistry returns the built-in catalog. It panics if the built-in
// tables are inconsistent, which can only happen through a code change.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(categories, defaultFlows)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in triage catalog: %v", err))
	}
	return r
}

// Categories returns the registered categories in display order.
func (r *Registry) Categories() []models.Category {
	return append([]models.Category(nil), r.categories...)
}

// Category looks up a registered category.
func (r *Registry) Category(id models.CategoryID) (models.Category, bool) {
	for _, c := range r.categories {
		if c.ID == id {
			return c, true
		}
	}
	return models.Category{}, false
}

// FlowFor returns the flow of a category.
func (r *Registry) FlowFor(id models.CategoryID) (models.Flow, bool) {
	f, ok := r.flows[id]
	return f, ok
}

var defaultFlows = map[models.CategoryID]models.Flow{
	models.CategoryHardware: {
		Issues: []string{
			"Computador nao liga",
			"Equipamento lento ou travando",
			"Periferico (mouse/teclado/impressora) com falha",
			"Outro em hardware",
		},
		Prompts: []models.Prompt{
			{ID: "hardware-equipamento", Question: "Qual equipamento voce esta usando?", Type: models.PromptTypeChoice,
				Options: []string{"Notebook corporativo", "Desktop", "Impressora", "Outro dispositivo"}},
			{ID: "hardware-erro", Question: "Aparece algum erro ou luz de alerta? Se sim, descreva.", Type: models.PromptTypeText,
				Placeholder: "Ex.: Tela preta, bip, codigo de erro"},
			{ID: "hardware-acao", Question: "O que acontece quando voce liga ou tenta usar o equipamento?", Type: models.PromptTypeText,
				Placeholder: "Ex.: Desliga sozinho, fica travado, nao responde..."},
		},
	},
	models.CategorySoftware: {
		Issues: []string{
			"Aplicativo nao abre",
			"Sistema lento ou travando",
			"Erro em funcionalidade especifica",
			"Outro em software",
		},
		Prompts: []models.Prompt{
			{ID: "software-sistema", Question: "Qual sistema ou aplicativo esta com problema?", Type: models.PromptTypeText,
				Placeholder: "Ex.: ERP, e-mail, navegador..."},
			{ID: "software-erro", Question: "Aparece alguma mensagem de erro? Digite exatamente o que ve na tela.", Type: models.PromptTypeText,
				Placeholder: "Mensagem apresentada"},
			{ID: "software-acao", Question: "O que acontece quando voce tenta usar o recurso?", Type: models.PromptTypeText,
				Placeholder: "Ex.: Fecha sozinho, fica carregando, nao salva..."},
		},
	},
	models.CategoryRede: {
		Issues: []string{
			"Sem internet",
			"VPN nao conecta",
			"Wi-Fi lento/caindo",
			"Outro em rede",
		},
		Prompts: []models.Prompt{
			{ID: "rede-medio", Question: "Como voce esta conectado?", Type: models.PromptTypeChoice,
				Options: []string{"Wi-Fi corporativo", "Cabo de rede", "4G/Hotspot", "Nao sei"}},
			{ID: "rede-impacto", Question: "Quantas pessoas sao impactadas?", Type: models.PromptTypeChoice,
				Options: []string{"Somente eu", "Minha equipe", "Unidade inteira", "Nao sei informar"}},
			{ID: "rede-comportamento", Question: "O que acontece quando tenta navegar ou conectar? Informe qualquer codigo.", Type: models.PromptTypeText,
				Placeholder: "Ex.: Sem acesso a sites, VPN desconecta, sinal fraco..."},
		},
	},
	models.CategoryAcesso: {
		Issues: []string{
			"Esqueci/minha senha venceu",
			"Usuario bloqueado",
			"Problema com MFA",
			"Sem permissao",
		},
		Prompts: []models.Prompt{
			{ID: "acesso-sistema", Question: "Qual sistema voce tenta acessar?", Type: models.PromptTypeText,
				Placeholder: "Ex.: E-mail, ERP, VPN..."},
			{ID: "acesso-erro", Question: "Qual mensagem aparece ao tentar fazer login?", Type: models.PromptTypeText,
				Placeholder: "Mensagem ou codigo exibido"},
			{ID: "acesso-impacto", Question: "Esse bloqueio impede alguma atividade urgente? Conte rapidamente.", Type: models.PromptTypeText},
		},
	},
	models.CategoryInfra: {
		Issues: []string{
			"Servidor fora do ar",
			"Banco de dados lento",
			"Backup falhou",
			"Outro em infraestrutura",
		},
		Prompts: []models.Prompt{
			{ID: "infra-servico", Question: "Qual servico/servidor esta impactado?", Type: models.PromptTypeText,
				Placeholder: "Nome ou endereco do servico"},
			{ID: "infra-impacto", Question: "Qual o impacto percebido pelos usuarios ou sistemas?", Type: models.PromptTypeText,
				Placeholder: "Sem acesso, lentidao, integracao parada..."},
			{ID: "infra-inicio", Question: "Quando o problema comecou e algo mudou antes disso?", Type: models.PromptTypeText,
				Placeholder: "Ex.: desde ontem 14h, apos atualizacao..."},
		},
	},
	models.CategoryOutros: {
		Issues: []string{
			"Duvida geral",
			"Solicitacao de melhoria",
			"Suporte presencial",
			"Outro assunto",
		},
		Prompts: []models.Prompt{
			{ID: "outros-contexto", Question: "Resuma o contexto do que precisa ou do incidente.", Type: models.PromptTypeText},
			{ID: "outros-impacto", Question: "Existe algum impacto ou urgencia associada? Descreva.", Type: models.PromptTypeText},
		},
	},
}
