package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/HelpLine/internal/models"
)

// stubResponder records the context it was asked with.
type stubResponder struct {
	mu     sync.Mutex
	reply  string
	calls  [][]models.ChatMessage
	resets int
}

func (r *stubResponder) Ask(ctx context.Context, messages []models.ChatMessage) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, messages)
	return r.reply
}

func (r *stubResponder) Reset() {
	r.resets++
}

func lastMessage(t *testing.T, s *Session) models.Message {
	t.Helper()
	tr := s.Transcript()
	if len(tr) == 0 {
		t.Fatal("empty transcript")
	}
	return tr[len(tr)-1]
}

func newRedeSession(t *testing.T, r Responder) *Session {
	t.Helper()
	s := NewSession(WithResponder(r))
	if !s.Accept() {
		t.Fatal("Accept should apply")
	}
	if !s.SelectCategory(models.CategoryRede) {
		t.Fatal("SelectCategory should apply")
	}
	if !s.SelectIssue("Sem internet") {
		t.Fatal("SelectIssue should apply")
	}
	return s
}

func TestNewSessionWelcome(t *testing.T) {
	r := &stubResponder{}
	s := NewSession(WithResponder(r))
	if s.State() != models.StateAwaitingConsent {
		t.Errorf("expected %s, got %s", models.StateAwaitingConsent, s.State())
	}
	msg := lastMessage(t, s)
	if msg.Sender != models.SenderBot || !strings.Contains(msg.Text, "LGPD") {
		t.Errorf("unexpected welcome message %+v", msg)
	}
	if r.resets != 1 {
		t.Errorf("expected responder reset on new session, got %d", r.resets)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	s := NewSession()
	if !s.Accept() {
		t.Fatal("first Accept should apply")
	}
	n := len(s.Transcript())
	if s.Accept() {
		t.Error("second Accept should be a no-op")
	}
	if len(s.Transcript()) != n {
		t.Error("second Accept should not append messages")
	}
	if s.State() != models.StateAwaitingCategory {
		t.Errorf("expected %s, got %s", models.StateAwaitingCategory, s.State())
	}
}

func TestConsentGate(t *testing.T) {
	s := NewSession()
	if s.SelectCategory(models.CategoryRede) {
		t.Error("SelectCategory should be ignored before consent")
	}
	if s.ResetCategory() {
		t.Error("ResetCategory should be ignored before consent")
	}
	if s.SubmitText(context.Background(), "oi") {
		t.Error("SubmitText should be ignored before consent")
	}
	if len(s.Transcript()) != 1 {
		t.Errorf("expected only the welcome message, got %d", len(s.Transcript()))
	}
}

func TestSelectCategoryEmitsIssueOptions(t *testing.T) {
	s := NewSession()
	s.Accept()
	if s.SelectCategory("impressoras") {
		t.Error("unknown category should be ignored")
	}
	s.SelectCategory(models.CategoryHardware)

	if s.State() != models.StateAwaitingIssue {
		t.Errorf("expected %s, got %s", models.StateAwaitingIssue, s.State())
	}
	msg := lastMessage(t, s)
	if msg.Meta == nil || msg.Meta.Kind != models.MetaIssueOptions {
		t.Fatalf("expected issue-options meta, got %+v", msg.Meta)
	}
	if len(msg.Meta.Options) != 4 || msg.Meta.Options[0] != "Computador nao liga" {
		t.Errorf("unexpected options %v", msg.Meta.Options)
	}
}

func TestScenarioRedeFlowCompletes(t *testing.T) {
	s := newRedeSession(t, &stubResponder{})

	p, ok := s.CurrentPrompt()
	if !ok || p.ID != "rede-medio" {
		t.Fatalf("expected rede-medio active, got %+v", p)
	}
	choice := lastMessage(t, s)
	if choice.Meta == nil || choice.Meta.Kind != models.MetaPromptChoice || choice.Meta.PromptID != "rede-medio" {
		t.Fatalf("expected prompt-choice meta for rede-medio, got %+v", choice.Meta)
	}
	if !strings.HasSuffix(choice.Text, ChoiceHintSuffix) {
		t.Errorf("choice prompt should end with the hint, got %q", choice.Text)
	}

	if !s.ChoosePromptOption("rede-medio", "Wi-Fi corporativo") {
		t.Fatal("valid choice should apply")
	}
	if !s.ChoosePromptOption("rede-impacto", "Somente eu") {
		t.Fatal("valid choice should apply")
	}
	if s.Complete() {
		t.Fatal("flow should not be complete before the last answer")
	}
	if !s.Answer("Nenhum site abre") {
		t.Fatal("text answer should apply")
	}

	if !s.Complete() || s.StepIndex() != 3 {
		t.Fatalf("expected complete at step 3, got complete=%v step=%d", s.Complete(), s.StepIndex())
	}
	if s.State() != models.StateFlowComplete {
		t.Errorf("expected %s, got %s", models.StateFlowComplete, s.State())
	}

	tr := s.Transcript()
	guide := tr[len(tr)-2]
	if !strings.HasPrefix(guide.Text, "Confirme estes pontos antes de encaminharmos:") {
		t.Errorf("expected Rede guide, got %q", guide.Text)
	}
	for _, step := range []string{"\n1. ", "\n2. ", "\n3. "} {
		if !strings.Contains(guide.Text, step) {
			t.Errorf("guide missing step marker %q", step)
		}
	}
	if tr[len(tr)-1].Text != ClosingText {
		t.Errorf("expected closing message, got %q", tr[len(tr)-1].Text)
	}
	if s.PendingFeedback() != tr[len(tr)-1].ID {
		t.Errorf("closing message should await feedback, pending=%q guide=%q", s.PendingFeedback(), guide.ID)
	}

	answers := s.Answers()
	if answers["rede-medio"] != "Wi-Fi corporativo" || answers["rede-impacto"] != "Somente eu" || answers["rede-comportamento"] != "Nenhum site abre" {
		t.Errorf("unexpected answers %v", answers)
	}
}

func TestChoosePromptOptionGuards(t *testing.T) {
	s := newRedeSession(t, &stubResponder{})

	if s.ChoosePromptOption("rede-impacto", "Somente eu") {
		t.Error("selection for a future prompt should be ignored")
	}
	if s.ChoosePromptOption("rede-medio", "Satelite") {
		t.Error("unknown option should be ignored")
	}
	s.ChoosePromptOption("rede-medio", "Cabo de rede")
	n := len(s.Transcript())
	if s.ChoosePromptOption("rede-medio", "Wi-Fi corporativo") {
		t.Error("stale selection should be ignored")
	}
	if len(s.Transcript()) != n {
		t.Error("stale selection should not append messages")
	}
	if s.Answers()["rede-medio"] != "Cabo de rede" {
		t.Errorf("stale selection overwrote answer: %v", s.Answers())
	}
	if s.StepIndex() != 1 {
		t.Errorf("expected step 1, got %d", s.StepIndex())
	}
}

func TestSelectCategoryResetsProgress(t *testing.T) {
	s := newRedeSession(t, &stubResponder{})
	s.ChoosePromptOption("rede-medio", "Cabo de rede")

	s.SelectCategory(models.CategorySoftware)
	if s.Issue() != "" || len(s.Answers()) != 0 || s.StepIndex() != 0 || s.Complete() {
		t.Errorf("category change should reset issue progress: issue=%q answers=%v step=%d", s.Issue(), s.Answers(), s.StepIndex())
	}
	c, ok := s.Category()
	if !ok || c.ID != models.CategorySoftware {
		t.Errorf("expected software selected, got %+v", c)
	}
}

func TestSelectIssueValidation(t *testing.T) {
	s := NewSession()
	s.Accept()
	if s.SelectIssue("Sem internet") {
		t.Error("SelectIssue without category should be ignored")
	}
	s.SelectCategory(models.CategoryRede)
	if s.SelectIssue("Computador nao liga") {
		t.Error("issue from another flow should be ignored")
	}
}

func TestResetCategoryAndIssue(t *testing.T) {
	s := newRedeSession(t, &stubResponder{})
	s.ChoosePromptOption("rede-medio", "Cabo de rede")

	if !s.ResetIssue() {
		t.Fatal("ResetIssue should apply with an issue chosen")
	}
	if s.State() != models.StateAwaitingIssue || len(s.Answers()) != 0 {
		t.Errorf("expected awaiting issue with no answers, got %s %v", s.State(), s.Answers())
	}
	msg := lastMessage(t, s)
	if msg.Text != IssueReofferText || msg.Meta == nil || msg.Meta.Kind != models.MetaIssueOptions {
		t.Errorf("expected issue re-offer, got %+v", msg)
	}
	if s.ResetIssue() {
		t.Error("ResetIssue without an issue should be ignored")
	}

	if !s.ResetCategory() {
		t.Fatal("ResetCategory should apply after consent")
	}
	if s.State() != models.StateAwaitingCategory {
		t.Errorf("expected %s, got %s", models.StateAwaitingCategory, s.State())
	}
	if lastMessage(t, s).Text != ResetCategoryText {
		t.Error("expected reset category message")
	}
}

func TestIssueChangeDropsFeedbackTarget(t *testing.T) {
	policy := FeedbackPolicy{Threshold: 1}

	s := newRedeSession(t, &stubResponder{})
	s.ChoosePromptOption("rede-medio", "Wi-Fi corporativo")
	s.ChoosePromptOption("rede-impacto", "Somente eu")
	s.Answer("Nenhum site abre")
	if s.PendingFeedback() == "" {
		t.Fatal("completed flow should await feedback")
	}

	if !s.ResetIssue() {
		t.Fatal("ResetIssue should apply")
	}
	if s.PendingFeedback() != "" {
		t.Errorf("ResetIssue should drop the feedback target, got %q", s.PendingFeedback())
	}
	if s.Feedback(false, policy) {
		t.Error("feedback after ResetIssue should not escalate")
	}

	if !s.SelectIssue("VPN nao conecta") {
		t.Fatal("SelectIssue should apply")
	}
	if s.PendingFeedback() != "" {
		t.Errorf("SelectIssue should start without a feedback target, got %q", s.PendingFeedback())
	}
	if s.Feedback(false, policy) {
		t.Error("feedback while answering prompts should not escalate")
	}
}

func TestSubmitTextRouting(t *testing.T) {
	ctx := context.Background()
	r := &stubResponder{reply: "Tente reiniciar o roteador."}
	s := NewSession(WithResponder(r))
	s.Accept()
	s.SelectCategory(models.CategoryRede)

	s.SubmitText(ctx, "minha internet caiu")
	if lastMessage(t, s).Text != PickIssueText {
		t.Errorf("expected reminder to pick an issue, got %q", lastMessage(t, s).Text)
	}
	if s.LastFreeText() != "" {
		t.Error("reminder path should not record free text")
	}

	s.SelectIssue("Sem internet")
	s.SubmitText(ctx, "Wi-Fi corporativo")
	if s.Answers()["rede-medio"] != "Wi-Fi corporativo" {
		t.Errorf("typed text should answer the active prompt, got %v", s.Answers())
	}
	s.SubmitText(ctx, "Somente eu")
	s.SubmitText(ctx, "Nao abre nada")
	if !s.Complete() {
		t.Fatal("expected flow complete")
	}
	if len(r.calls) != 0 {
		t.Fatalf("responder should not be called during structured prompts, got %d calls", len(r.calls))
	}

	s.SubmitText(ctx, "ainda sem rede no notebook")
	if len(r.calls) != 1 {
		t.Fatalf("expected one responder call, got %d", len(r.calls))
	}
	if s.LastFreeText() != "ainda sem rede no notebook" {
		t.Errorf("unexpected last free text %q", s.LastFreeText())
	}
	reply := lastMessage(t, s)
	if reply.Sender != models.SenderBot || reply.Text != r.reply {
		t.Errorf("expected responder reply appended, got %+v", reply)
	}
	if s.PendingFeedback() != reply.ID {
		t.Error("responder reply should await feedback")
	}

	ctxMsgs := r.calls[0]
	if ctxMsgs[0].Role != models.ChatRoleSystem || !strings.HasPrefix(ctxMsgs[0].Content, SummaryHeader+"\n- Problema informado: Sem internet") {
		t.Errorf("expected structured summary first, got %+v", ctxMsgs[0])
	}
	if !strings.Contains(ctxMsgs[0].Content, "- Como voce esta conectado?: Wi-Fi corporativo") {
		t.Errorf("summary missing answer: %q", ctxMsgs[0].Content)
	}
	if ctxMsgs[1].Content != "Categoria selecionada pelo usuario: Rede" {
		t.Errorf("expected category context second, got %q", ctxMsgs[1].Content)
	}
	last := ctxMsgs[len(ctxMsgs)-1]
	if last.Role != models.ChatRoleUser || last.Content != "ainda sem rede no notebook" {
		t.Errorf("expected latest user text last, got %+v", last)
	}
}

func TestSubmitTextWithoutCategoryAsksResponder(t *testing.T) {
	r := &stubResponder{reply: "Pode detalhar?"}
	s := NewSession(WithResponder(r))
	s.Accept()
	s.SubmitText(context.Background(), "   ")
	if len(r.calls) != 0 {
		t.Error("blank text should be ignored")
	}
	s.SubmitText(context.Background(), "minha senha expirou")
	if len(r.calls) != 1 {
		t.Fatalf("expected one responder call, got %d", len(r.calls))
	}
	for _, m := range r.calls[0] {
		if m.Role == models.ChatRoleSystem {
			t.Errorf("no system context expected without category, got %q", m.Content)
		}
	}
}

func TestFreeTextGuideBeforeResponder(t *testing.T) {
	cats := []models.Category{{ID: "custom", Label: "Custom", TicketName: models.TicketCategoryOutros}}
	reg, err := NewRegistry(cats, map[models.CategoryID]models.Flow{"custom": {}})
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	r := &stubResponder{reply: "ok"}
	s := NewSession(WithRegistry(reg), WithResponder(r))
	s.Accept()
	s.SelectCategory("custom")
	if lastMessage(t, s).Text != CategoryFreeTextText {
		t.Errorf("flow without issues should offer free text, got %q", lastMessage(t, s).Text)
	}

	s.SubmitText(context.Background(), "preciso de ajuda")
	if len(r.calls) != 0 {
		t.Fatal("first free text should show the guide instead of asking the responder")
	}
	if !strings.HasPrefix(lastMessage(t, s).Text, defaultGuide.Title) {
		t.Errorf("expected default guide, got %q", lastMessage(t, s).Text)
	}

	s.SubmitText(context.Background(), "nao resolveu")
	if len(r.calls) != 1 {
		t.Errorf("second free text should reach the responder, got %d calls", len(r.calls))
	}
}

func TestSelectIssueWithoutPromptsCompletes(t *testing.T) {
	cats := []models.Category{{ID: "quick", Label: "Quick"}}
	reg, err := NewRegistry(cats, map[models.CategoryID]models.Flow{"quick": {Issues: []string{"Duvida"}}})
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	s := NewSession(WithRegistry(reg))
	s.Accept()
	s.SelectCategory("quick")
	s.SelectIssue("Duvida")
	if !s.Complete() || s.StepIndex() != 0 {
		t.Errorf("expected immediate completion, got complete=%v step=%d", s.Complete(), s.StepIndex())
	}
	if lastMessage(t, s).Text != ClosingText {
		t.Error("expected closing message")
	}
}

func TestFeedbackEscalatesAfterThreshold(t *testing.T) {
	ctx := context.Background()
	r := &stubResponder{reply: "Tente de novo."}
	s := NewSession(WithResponder(r))
	s.Accept()
	policy := FeedbackPolicy{}

	if s.Feedback(false, policy) {
		t.Error("feedback without a pending answer should be ignored")
	}

	s.SubmitText(ctx, "erro no sistema")
	if s.Feedback(false, policy) {
		t.Fatal("first miss should not escalate")
	}
	if lastMessage(t, s).Text != NotResolvedAckText {
		t.Errorf("expected not-resolved acknowledgement, got %q", lastMessage(t, s).Text)
	}

	s.SubmitText(ctx, "continua com erro")
	if !s.Feedback(false, policy) {
		t.Fatal("second consecutive miss should escalate")
	}

	s.SubmitText(ctx, "ok")
	if s.Feedback(true, policy) {
		t.Error("positive feedback should never escalate")
	}
	if lastMessage(t, s).Text != ResolvedAckText {
		t.Errorf("expected resolved acknowledgement, got %q", lastMessage(t, s).Text)
	}
}

func TestEscalationGuard(t *testing.T) {
	s := newRedeSession(t, &stubResponder{})
	snap, err := s.BeginEscalation()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Category == nil || snap.Category.ID != models.CategoryRede || snap.Issue != "Sem internet" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !strings.Contains(snap.History, "user: Problema selecionado: Sem internet") {
		t.Errorf("history missing user line: %q", snap.History)
	}

	if _, err := s.BeginEscalation(); !errors.Is(err, ErrEscalationInFlight) {
		t.Errorf("expected ErrEscalationInFlight, got %v", err)
	}
	s.CompleteEscalation(EscalationOutcome{TicketID: "t1", Protocol: "HL-001"}, "Chamado encaminhado. Protocolo: HL-001.")
	if !s.Escalated() {
		t.Fatal("expected escalated")
	}
	if _, err := s.BeginEscalation(); !errors.Is(err, ErrAlreadyEscalated) {
		t.Errorf("expected ErrAlreadyEscalated, got %v", err)
	}

	s.SelectCategory(models.CategorySoftware)
	if !s.Escalated() {
		t.Error("escalated must not reset on category change")
	}
	out, ok := s.Outcome()
	if !ok || out.Protocol != "HL-001" {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestBeginEscalationConcurrent(t *testing.T) {
	s := NewSession()
	s.Accept()

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginEscalation(); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if started != 1 {
		t.Errorf("expected exactly one escalation to start, got %d", started)
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	s := newRedeSession(t, &stubResponder{})
	seen := map[string]bool{}
	for _, m := range s.Transcript() {
		if m.ID == "" || seen[m.ID] {
			t.Fatalf("duplicate or empty message id %q", m.ID)
		}
		seen[m.ID] = true
	}
}
