// filepath: internal/flow/guide.go
package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/HelpLine/internal/models"
)

// GuideStepFormat is the format string for a numbered guide step.
const GuideStepFormat = "%d. %s"

// Guide is a short list of self-service steps shown before escalating.
type Guide struct {
	Title string
	Steps []string
}

// Text renders the guide as a title followed by numbered steps.
func (g Guide) Text() string {
	lines := make([]string, 0, len(g.Steps)+1)
	lines = append(lines, g.Title)
	for i, step := range g.Steps {
		lines = append(lines, fmt.Sprintf(GuideStepFormat, i+1, step))
	}
	return strings.Join(lines, "\n")
}

var defaultGuide = Guide{
	Title: "Revise estes pontos antes de escalarmos:",
	Steps: []string{
		"Reinicie o equipamento ou servico afetado e aguarde 1 minuto antes de testar.",
		"Teste com outro cabo, navegador ou usuario para comparar.",
		"Separe prints ou mensagens de erro para enviar ao analista.",
	},
}

var guides = map[models.CategoryID]Guide{
	models.CategoryRede: {
		Title: "Confirme estes pontos antes de encaminharmos:",
		Steps: []string{
			"Alterne entre Wi-Fi e cabo para ver se algum deles funciona melhor.",
			"Reinicie modem/roteador novamente e aguarde 2 minutos antes de conectar.",
			"Confirme com outra pessoa da equipe se a rede esta ok para ela.",
		},
	},
	models.CategoryHardware: {
		Title: "Vamos tentar mais algumas verificacoes rapidas:",
		Steps: []string{
			"Desligue o equipamento totalmente e aguarde 30 segundos antes de ligar de novo.",
			"Teste outro cabo de energia ou tomada e confirme se ha ventilacao livre.",
			"Desconecte perifericos desnecessarios (HD externo, impressora etc.) para ver se algum deles causa travamento.",
		},
	},
	models.CategorySoftware: {
		Title: "Algumas outras acoes que costumam ajudar:",
		Steps: []string{
			"Feche o aplicativo e abra novamente apos limpar arquivos temporarios ou cache.",
			"Verifique se ha atualizacoes pendentes do sistema e do app.",
			"Teste o mesmo acesso em outro navegador ou maquina para comparar.",
		},
	},
	models.CategoryAcesso: {
		Title: "Mais alguns passos de acesso:",
		Steps: []string{
			"Verifique se Caps Lock ou Num Lock estao ligados ao digitar a senha.",
			"Tente redefinir a senha pelo portal oficial e aguarde 5 minutos.",
			"Caso use MFA, confirme se o app/token esta sincronizado com o horario do celular.",
		},
	},
	models.CategoryInfra: {
		Title: "Antes de acionar o analista revise:",
		Steps: []string{
			"Valide se outros servicos dependentes estao respondendo normalmente.",
			"Se possuir permissao, reinicie o servico especifico e observe os logs basicos.",
			"Anote o horario exato e qualquer codigo de erro apresentado.",
		},
	},
	models.CategoryOutros: {
		Title: "Vamos registrar mais alguns detalhes rapidos:",
		Steps: []string{
			"Relembre o que mudou antes do problema (instalacao, atualizacao, queda de energia).",
			"Veja se acontece com outra pessoa ou dispositivo.",
			"Separe prints e horarios aproximados para anexarmos no chamado.",
		},
	},
}

// GuideFor returns the follow-up guide of a category, or the default guide
// when id is nil or has no dedicated guide.
func GuideFor(id *models.CategoryID) Guide {
	if id == nil {
		return defaultGuide
	}
	if g, ok := guides[*id]; ok {
		return g
	}
	return defaultGuide
}
