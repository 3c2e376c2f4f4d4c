// Package console is a line-oriented front-end for a triage session. It
// parses slash commands, renders the transcript and triggers escalation.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/HelpLine/internal/escalation"
	"github.com/BTreeMap/HelpLine/internal/flow"
	"github.com/BTreeMap/HelpLine/internal/models"
)

// HelpText lists the console commands.
const HelpText = `Comandos:
  /aceitar              aceitar os termos (LGPD)
  /categorias           listar categorias
  /categoria <id|n>     escolher categoria
  /problema <n|texto>   escolher problema
  /opcao <n>            responder pergunta de multipla escolha
  /trocar-categoria     voltar para a escolha de categoria
  /trocar-problema      voltar para a escolha de problema
  /resolveu             a resposta resolveu
  /nao-resolveu         a resposta nao resolveu
  /analista             falar com um analista
  /estado               mostrar o estado da triagem
  /sair                 encerrar
Qualquer outro texto e enviado ao chat.`

// Escalator files a ticket for a session.
type Escalator interface {
	Escalate(ctx context.Context, s *flow.Session) (escalation.Result, error)
}

// Option configures a Console.
type Option func(*Console)

// WithRegistry sets the catalog used to resolve /categoria arguments.
func WithRegistry(r *flow.Registry) Option {
	return func(c *Console) {
		c.registry = r
	}
}

// WithFeedbackPolicy sets the auto-escalation policy for /nao-resolveu.
func WithFeedbackPolicy(p flow.FeedbackPolicy) Option {
	return func(c *Console) {
		c.policy = p
	}
}

// Console drives one session from line input.
type Console struct {
	session   *flow.Session
	escalator Escalator
	registry  *flow.Registry
	policy    flow.FeedbackPolicy
	out       io.Writer
	rendered  int
}

// New creates a console for session writing to out.
func New(session *flow.Session, escalator Escalator, out io.Writer, opts ...Option) *Console {
	c := &Console{session: session, escalator: escalator, out: out}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = flow.DefaultRegistry()
	}
	return c
}

// Run renders the transcript and handles lines from in until EOF, /sair or
// context cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	c.flush()
	sc := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(c.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		if !c.Handle(ctx, sc.Text()) {
			return nil
		}
	}
}

// Seed opens the chat with context text, as when the user arrives from a help
// article: consent is accepted and the text is submitted.
func (c *Console) Seed(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.session.Accept()
	c.session.SubmitText(ctx, text)
	c.flush()
}

// Handle processes one input line and reports whether the console should keep running.
func (c *Console) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		c.done(c.session.SubmitText(ctx, line))
		return true
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	slog.Debug("Console.Handle: command", "cmd", cmd, "arg", arg)

	switch strings.ToLower(cmd) {
	case "/sair":
		return false
	case "/ajuda", "/help":
		c.notice(HelpText)
	case "/aceitar":
		c.done(c.session.Accept())
	case "/categorias":
		c.listCategories()
	case "/categoria":
		c.selectCategory(arg)
	case "/problema":
		c.selectIssue(arg)
	case "/opcao":
		c.chooseOption(arg)
	case "/trocar-categoria":
		c.done(c.session.ResetCategory())
	case "/trocar-problema":
		c.done(c.session.ResetIssue())
	case "/resolveu":
		c.session.Feedback(true, c.policy)
		c.flush()
	case "/nao-resolveu":
		if c.session.Feedback(false, c.policy) {
			c.escalate(ctx)
		}
		c.flush()
	case "/analista":
		c.escalate(ctx)
	case "/estado":
		c.printState()
	default:
		c.notice(fmt.Sprintf("comando desconhecido: %s (use /ajuda)", cmd))
	}
	return true
}

func (c *Console) listCategories() {
	var b strings.Builder
	for i, cat := range c.registry.Categories() {
		fmt.Fprintf(&b, "%d) %s [%s] %s\n", i+1, cat.Label, cat.ID, cat.Description)
	}
	c.notice(strings.TrimRight(b.String(), "\n"))
}

func (c *Console) selectCategory(arg string) {
	cats := c.registry.Categories()
	id := models.CategoryID(strings.ToLower(arg))
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(cats) {
		id = cats[n-1].ID
	}
	if _, ok := c.registry.Category(id); !ok {
		c.notice(fmt.Sprintf("categoria desconhecida: %q (use /categorias)", arg))
		return
	}
	c.done(c.session.SelectCategory(id))
}

func (c *Console) selectIssue(arg string) {
	issue := arg
	if n, err := strconv.Atoi(arg); err == nil {
		opts := c.session.IssueOptions()
		if n < 1 || n > len(opts) {
			c.notice(fmt.Sprintf("opcao invalida: %d", n))
			return
		}
		issue = opts[n-1]
	}
	c.done(c.session.SelectIssue(issue))
}

func (c *Console) chooseOption(arg string) {
	p, ok := c.session.CurrentPrompt()
	if !ok || p.Type != models.PromptTypeChoice {
		c.notice("nenhuma pergunta de multipla escolha pendente")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(p.Options) {
		c.notice(fmt.Sprintf("opcao invalida: %q", arg))
		return
	}
	c.done(c.session.ChoosePromptOption(p.ID, p.Options[n-1]))
}

func (c *Console) escalate(ctx context.Context) {
	if c.escalator == nil {
		c.notice("encaminhamento indisponivel")
		return
	}
	res, err := c.escalator.Escalate(ctx, c.session)
	switch {
	case errors.Is(err, flow.ErrAlreadyEscalated):
		out, _ := c.session.Outcome()
		c.notice(fmt.Sprintf("chamado ja encaminhado (protocolo %s)", out.Protocol))
	case errors.Is(err, flow.ErrEscalationInFlight):
		c.notice("encaminhamento em andamento")
	case err != nil:
		c.notice(fmt.Sprintf("falha ao encaminhar: %v", err))
	default:
		slog.Info("Console.escalate: escalated", "protocol", res.Protocol, "provisional", res.Provisional)
	}
	c.flush()
}

func (c *Console) printState() {
	var b strings.Builder
	fmt.Fprintf(&b, "estado: %s\n", c.session.State())
	if cat, ok := c.session.Category(); ok {
		fmt.Fprintf(&b, "categoria: %s\n", cat.Label)
	}
	if issue := c.session.Issue(); issue != "" {
		fmt.Fprintf(&b, "problema: %s (pergunta %d)\n", issue, c.session.StepIndex()+1)
	}
	for _, line := range c.session.SummaryLines() {
		fmt.Fprintln(&b, line)
	}
	if out, ok := c.session.Outcome(); ok {
		kind := "definitivo"
		if out.Provisional {
			kind = "provisorio"
		}
		fmt.Fprintf(&b, "protocolo: %s (%s)\n", out.Protocol, kind)
	}
	c.notice(strings.TrimRight(b.String(), "\n"))
}

// done renders new messages, or a hint when the command changed nothing.
func (c *Console) done(applied bool) {
	if !applied {
		c.notice(fmt.Sprintf("nada a fazer no estado atual (%s)", c.session.State()))
	}
	c.flush()
}

func (c *Console) notice(text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(c.out, "! %s\n", line)
	}
}

// flush writes the transcript messages not yet shown.
func (c *Console) flush() {
	msgs := c.session.Transcript()
	for _, m := range msgs[c.rendered:] {
		fmt.Fprintf(c.out, "[%s] %s\n", senderLabel(m.Sender), m.Text)
		if m.Meta != nil {
			for i, opt := range m.Meta.Options {
				fmt.Fprintf(c.out, "    %d) %s\n", i+1, opt)
			}
		}
	}
	c.rendered = len(msgs)
}

func senderLabel(s models.Sender) string {
	switch s {
	case models.SenderUser:
		return "voce"
	case models.SenderSystem:
		return "sistema"
	case models.SenderAnalyst:
		return "analista"
	default:
		return "helpline"
	}
}
