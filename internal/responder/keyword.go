package responder

import (
	"context"
	"strings"

	"github.com/BTreeMap/HelpLine/internal/models"
)

// KeywordReplier answers from canned diagnostics picked by keyword. It is the
// offline replier used when no assistant backend is configured.
type KeywordReplier struct{}

var cannedReplies = []struct {
	keywords []string
	reply    string
}{
	{
		[]string{"wifi", "wi-fi", "rede"},
		"Vamos verificar sua conexao: 1) Confirme se o Wi-Fi esta ativo; 2) Desligue/ligue o roteador; 3) Teste outra rede. Se persistir, informe o SSID e se ha erro especifico.",
	},
	{
		[]string{"senha", "acesso", "login"},
		"Para acesso/senha: 1) Tente redefinicao no portal; 2) Verifique se ha bloqueio por tentativas; 3) Informe usuario/sistema afetado (sem dados sensiveis).",
	},
	{
		[]string{"impressora"},
		"Para impressoras: 1) Verifique cabos/energia; 2) Veja se a fila esta pausada; 3) Reinstale drivers; 4) Informe modelo/erro exibido.",
	},
}

// DefaultCannedReply is returned when no keyword matches.
const DefaultCannedReply = "Certo! Para ajudar melhor, descreva o que acontece, quando comecou, qual sistema/equipamento esta envolvido e se ha mensagem de erro. Posso sugerir passos de diagnostico em seguida."

// Reply answers based on the latest user message.
func (KeywordReplier) Reply(ctx context.Context, messages []models.ChatMessage) (string, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.ChatRoleUser {
			last = strings.ToLower(messages[i].Content)
			break
		}
	}
	for _, c := range cannedReplies {
		for _, kw := range c.keywords {
			if strings.Contains(last, kw) {
				return c.reply, nil
			}
		}
	}
	return DefaultCannedReply, nil
}
