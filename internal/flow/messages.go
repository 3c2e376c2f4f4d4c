// filepath: internal/flow/messages.go
package flow

// Bot copy used by the triage session.
const (
	WelcomeText          = "Bem-vindo ao chat da HelpLine! Este canal faz a triagem inicial. Suas informacoes serao tratadas conforme a LGPD (Lei 13.709/2018). Ao continuar, voce concorda com o uso dos dados para atendimento tecnico."
	ConsentText          = "Concordo com os termos de tratamento de dados (LGPD) para suporte tecnico."
	ChooseCategoryText   = "Obrigado! Escolha a categoria que melhor descreve sua solicitacao."
	CategoryChosenFormat = "Categoria escolhida: %s"
	CategoryAckFormat    = "Perfeito, vamos tratar %s. Escolha abaixo o tipo de problema e responda as perguntas rapidas para direcionarmos melhor."
	CategoryFreeTextText = "Descreva com suas palavras o que esta acontecendo para seguirmos."
	IssueOptionsText     = "Qual opcao representa melhor o problema? Toque para selecionar e seguir com algumas perguntas."
	IssueReofferText     = "Sem problemas, escolha novamente a opcao que melhor representa a situacao:"
	IssueChosenFormat    = "Problema selecionado: %s"
	IssueAckText         = "Entendido. Vou fazer algumas perguntas rapidas para coletar informacoes essenciais:"
	IssueAckNoPrompts    = "Entendido. Vou registrar esse problema e ja envio orientacoes basicas."
	ChoiceHintSuffix     = "\nEscolha uma das opcoes abaixo."
	ClosingText          = "Caso precise complementar com prints ou passos realizados, escreva aqui. Se precisar de ajuda humana, toque em \"Falar com um analista\"."
	ResetCategoryText    = "Tudo certo! Escolha uma nova categoria para continuarmos."
	PickIssueText        = "Selecione um dos problemas listados acima para continuar a triagem."
	ResolvedAckText      = "Que bom! Se precisar, estou por aqui."
	NotResolvedAckText   = "Entendi. Vou tentar outra abordagem. Conte mais detalhes, por favor."
	SummaryHeader        = "Resumo estruturado:"
	SummaryIssueFormat   = "- Problema informado: %s"
	SummaryAnswerFormat  = "- %s: %s"
	SelectedCategoryFmt  = "Categoria selecionada pelo usuario: %s"
)
