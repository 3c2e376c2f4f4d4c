// filepath: internal/flow/session.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HelpLine/internal/models"
	"github.com/google/uuid"
)

// Responder produces replies for free text that falls outside the structured flow.
// Implementations must not fail; they return fallback text instead.
type Responder interface {
	Ask(ctx context.Context, messages []models.ChatMessage) string
}

// resetter is implemented by responders that keep per-session state.
type resetter interface {
	Reset()
}

// Escalation guard errors.
var (
	ErrAlreadyEscalated   = errors.New("session already escalated")
	ErrEscalationInFlight = errors.New("escalation already in progress")
)

// EscalationOutcome records the ticket reference a session was escalated to.
type EscalationOutcome struct {
	TicketID    string
	Protocol    string
	Provisional bool
}

// Snapshot is the read-only view of a session handed to the escalation coordinator.
type Snapshot struct {
	Category     *models.Category
	Issue        string
	Answers      map[string]string
	LastFreeText string
	// History is the transcript rendered as "sender: text" lines.
	History string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRegistry sets the flow catalog used by the session.
func WithRegistry(r *Registry) SessionOption {
	return func(s *Session) {
		s.registry = r
	}
}

// WithResponder sets the free-form responder.
func WithResponder(r Responder) SessionOption {
	return func(s *Session) {
		s.responder = r
	}
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.clock = now
	}
}

// WithIDGenerator overrides the message id generator.
func WithIDGenerator(gen func() string) SessionOption {
	return func(s *Session) {
		s.newID = gen
	}
}

// Session is the in-memory triage state of a single chat.
// All methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	registry  *Registry
	responder Responder
	clock     func() time.Time
	newID     func() string

	consentGiven bool
	category     *models.Category
	issue        string
	answers      map[string]string
	stepIndex    int
	complete     bool
	escalated    bool
	escalating   bool
	lastFreeText string
	guideSent    bool

	pendingFeedback string
	misses          int
	outcome         *EscalationOutcome

	transcript []models.Message
}

// NewSession creates a session waiting for consent and emits the welcome message.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		clock:   time.Now,
		newID:   uuid.NewString,
		answers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if r, ok := s.responder.(resetter); ok {
		r.Reset()
	}
	s.appendLocked(models.SenderBot, WelcomeText, nil)
	slog.Debug("Session.NewSession: created", "responder_set", s.responder != nil)
	return s
}

// Accept records consent. Calling it again is a no-op.
func (s *Session) Accept() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consentGiven {
		slog.Debug("Session.Accept: consent already given")
		return false
	}
	s.consentGiven = true
	s.appendLocked(models.SenderUser, ConsentText, nil)
	s.appendLocked(models.SenderBot, ChooseCategoryText, nil)
	slog.Debug("Session.Accept: consent recorded")
	return true
}

// SelectCategory starts the flow of a category, discarding any earlier issue and answers.
func (s *Session) SelectCategory(id models.CategoryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.consentGiven {
		slog.Debug("Session.SelectCategory: ignored before consent", "category", id)
		return false
	}
	cat, ok := s.registry.Category(id)
	if !ok {
		slog.Debug("Session.SelectCategory: unknown category", "category", id)
		return false
	}
	f, _ := s.registry.FlowFor(id)

	s.category = &cat
	s.clearIssueLocked()
	s.clearFeedbackLocked()

	s.appendLocked(models.SenderUser, fmt.Sprintf(CategoryChosenFormat, cat.Label), nil)
	s.appendLocked(models.SenderBot, fmt.Sprintf(CategoryAckFormat, cat.Label), nil)
	if len(f.Issues) > 0 {
		s.appendLocked(models.SenderBot, IssueOptionsText, issueOptionsMeta(f))
	} else {
		s.appendLocked(models.SenderBot, CategoryFreeTextText, nil)
	}
	slog.Debug("Session.SelectCategory: category selected", "category", id, "issues", len(f.Issues))
	return true
}

// SelectIssue picks one of the current category's issues and starts its prompts.
func (s *Session) SelectIssue(issue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.category == nil {
		slog.Debug("Session.SelectIssue: ignored without category", "issue", issue)
		return false
	}
	f := s.flowLocked()
	if !f.HasIssue(issue) {
		slog.Debug("Session.SelectIssue: issue not in flow", "category", s.category.ID, "issue", issue)
		return false
	}

	s.clearIssueLocked()
	s.clearFeedbackLocked()
	s.issue = issue
	s.appendLocked(models.SenderUser, fmt.Sprintf(IssueChosenFormat, issue), nil)

	if len(f.Prompts) == 0 {
		s.appendLocked(models.SenderBot, IssueAckNoPrompts, nil)
		s.completeLocked()
		return true
	}
	s.appendLocked(models.SenderBot, IssueAckText, nil)
	s.emitPromptLocked(f.Prompts[0])
	slog.Debug("Session.SelectIssue: issue selected", "category", s.category.ID, "issue", issue, "prompts", len(f.Prompts))
	return true
}

// Answer records text as the answer to the current prompt.
func (s *Session) Answer(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.currentPromptLocked(); !ok {
		slog.Debug("Session.Answer: no active prompt", "state", s.stateLocked())
		return false
	}
	s.appendLocked(models.SenderUser, text, nil)
	s.answerLocked(text)
	return true
}

// ChoosePromptOption answers a choice prompt. Selections for a prompt that is
// no longer active, or options it does not offer, are ignored.
func (s *Session) ChoosePromptOption(promptID, option string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.currentPromptLocked()
	if !ok || p.ID != promptID {
		slog.Debug("Session.ChoosePromptOption: stale selection", "prompt_id", promptID, "active", p.ID)
		return false
	}
	if !p.HasOption(option) {
		slog.Debug("Session.ChoosePromptOption: unknown option", "prompt_id", promptID, "option", option)
		return false
	}
	s.appendLocked(models.SenderUser, option, nil)
	s.answerLocked(option)
	return true
}

// ResetCategory returns to category selection. It does nothing before consent.
func (s *Session) ResetCategory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.consentGiven {
		slog.Debug("Session.ResetCategory: ignored before consent")
		return false
	}
	s.category = nil
	s.clearIssueLocked()
	s.clearFeedbackLocked()
	s.appendLocked(models.SenderBot, ResetCategoryText, nil)
	return true
}

// ResetIssue re-offers the issue list of the current category.
func (s *Session) ResetIssue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.category == nil || s.issue == "" {
		slog.Debug("Session.ResetIssue: no issue chosen")
		return false
	}
	f := s.flowLocked()
	s.clearIssueLocked()
	s.clearFeedbackLocked()
	s.appendLocked(models.SenderBot, IssueReofferText, issueOptionsMeta(f))
	return true
}

// SubmitText interprets typed text according to the current state: an answer
// while prompts are pending, a reminder while an issue must be picked, and a
// free-form question otherwise.
func (s *Session) SubmitText(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	handled, history := s.routeText(text)
	if history == nil {
		return handled
	}

	reply := s.responder.Ask(ctx, history)

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.appendLocked(models.SenderBot, reply, nil)
	s.pendingFeedback = msg.ID
	return true
}

// routeText handles text under the lock. It returns the assistant context when
// a free-form reply is needed.
func (s *Session) routeText(text string) (bool, []models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.stateLocked() {
	case models.StateAwaitingConsent:
		slog.Debug("Session.SubmitText: ignored before consent")
		return false, nil
	case models.StateAnsweringPrompts:
		s.appendLocked(models.SenderUser, text, nil)
		s.answerLocked(text)
		return true, nil
	case models.StateAwaitingIssue:
		if f := s.flowLocked(); len(f.Issues) > 0 {
			s.appendLocked(models.SenderUser, text, nil)
			s.appendLocked(models.SenderBot, PickIssueText, nil)
			return true, nil
		}
	}

	s.appendLocked(models.SenderUser, text, nil)
	s.lastFreeText = text
	if s.category != nil && !s.guideSent {
		s.sendGuideLocked()
		return true, nil
	}
	if s.responder == nil {
		slog.Warn("Session.SubmitText: no responder configured")
		return true, nil
	}
	return true, s.chatMessagesLocked()
}

// Feedback consumes the resolved/not-resolved signal for the latest bot answer.
// It reports whether policy asks for an escalation.
func (s *Session) Feedback(resolved bool, policy FeedbackPolicy) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingFeedback == "" {
		slog.Debug("Session.Feedback: nothing awaiting feedback")
		return false
	}
	s.pendingFeedback = ""

	if resolved {
		s.misses = 0
		s.appendLocked(models.SenderBot, ResolvedAckText, nil)
		return false
	}
	s.misses++
	if policy.ShouldEscalate(s.misses) && !s.escalated && !s.escalating {
		slog.Info("Session.Feedback: escalation threshold reached", "misses", s.misses)
		s.misses = 0
		return true
	}
	s.appendLocked(models.SenderBot, NotResolvedAckText, nil)
	return false
}

// BeginEscalation marks an escalation as in flight and returns the data needed
// to build the ticket.
func (s *Session) BeginEscalation() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.escalated {
		return Snapshot{}, ErrAlreadyEscalated
	}
	if s.escalating {
		return Snapshot{}, ErrEscalationInFlight
	}
	s.escalating = true

	snap := Snapshot{
		Issue:        s.issue,
		Answers:      make(map[string]string, len(s.answers)),
		LastFreeText: s.lastFreeText,
		History:      s.historyLocked(),
	}
	if s.category != nil {
		c := *s.category
		snap.Category = &c
	}
	for k, v := range s.answers {
		snap.Answers[k] = v
	}
	return snap, nil
}

// CompleteEscalation records the outcome of an escalation and appends the
// system messages announcing it.
func (s *Session) CompleteEscalation(outcome EscalationOutcome, notices ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.escalating = false
	s.escalated = true
	s.outcome = &outcome
	for _, n := range notices {
		s.appendLocked(models.SenderSystem, n, nil)
	}
	slog.Info("Session.CompleteEscalation: escalated", "protocol", outcome.Protocol, "provisional", outcome.Provisional)
}

// State returns the derived triage state.
func (s *Session) State() models.TriageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Transcript returns a copy of the message log.
func (s *Session) Transcript() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.transcript...)
}

// Answers returns a copy of the collected answers keyed by prompt id.
func (s *Session) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Category returns the selected category, if any.
func (s *Session) Category() (models.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.category == nil {
		return models.Category{}, false
	}
	return *s.category, true
}

// Issue returns the selected issue, or "".
func (s *Session) Issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue
}

// StepIndex returns the index of the next prompt to answer.
func (s *Session) StepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepIndex
}

// Complete reports whether the structured prompts are exhausted.
func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Escalated reports whether a ticket (real or provisional) was filed.
func (s *Session) Escalated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalated
}

// LastFreeText returns the most recent free-form user text.
func (s *Session) LastFreeText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFreeText
}

// PendingFeedback returns the id of the bot message awaiting feedback, or "".
func (s *Session) PendingFeedback() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingFeedback
}

// Outcome returns the escalation outcome once the session is escalated.
func (s *Session) Outcome() (EscalationOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return EscalationOutcome{}, false
	}
	return *s.outcome, true
}

// CurrentPrompt returns the prompt awaiting an answer.
func (s *Session) CurrentPrompt() (models.Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPromptLocked()
}

// IssueOptions returns the issues of the selected category.
func (s *Session) IssueOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.category == nil {
		return nil
	}
	return append([]string(nil), s.flowLocked().Issues...)
}

// SummaryLines returns the structured summary of the issue and answers.
func (s *Session) SummaryLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLinesLocked()
}

// ChatMessages returns the assistant context: the structured summary and the
// selected category as system messages, followed by the transcript.
func (s *Session) ChatMessages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatMessagesLocked()
}

func (s *Session) stateLocked() models.TriageState {
	switch {
	case !s.consentGiven:
		return models.StateAwaitingConsent
	case s.category == nil:
		return models.StateAwaitingCategory
	case s.issue == "":
		return models.StateAwaitingIssue
	case !s.complete:
		return models.StateAnsweringPrompts
	default:
		return models.StateFlowComplete
	}
}

func (s *Session) flowLocked() models.Flow {
	if s.category == nil {
		return models.Flow{}
	}
	f, _ := s.registry.FlowFor(s.category.ID)
	return f
}

func (s *Session) currentPromptLocked() (models.Prompt, bool) {
	if s.stateLocked() != models.StateAnsweringPrompts {
		return models.Prompt{}, false
	}
	f := s.flowLocked()
	if s.stepIndex >= len(f.Prompts) {
		return models.Prompt{}, false
	}
	return f.Prompts[s.stepIndex], true
}

// clearFeedbackLocked drops the feedback target and guide state of an abandoned issue.
func (s *Session) clearFeedbackLocked() {
	s.guideSent = false
	s.pendingFeedback = ""
	s.misses = 0
}

func (s *Session) clearIssueLocked() {
	s.issue = ""
	s.answers = make(map[string]string)
	s.stepIndex = 0
	s.complete = false
}

// answerLocked assumes a prompt is active.
func (s *Session) answerLocked(text string) {
	f := s.flowLocked()
	p := f.Prompts[s.stepIndex]
	s.answers[p.ID] = text
	s.stepIndex++
	slog.Debug("Session.Answer: answer recorded", "prompt_id", p.ID, "step", s.stepIndex, "total", len(f.Prompts))

	if s.stepIndex < len(f.Prompts) {
		s.emitPromptLocked(f.Prompts[s.stepIndex])
		return
	}
	s.completeLocked()
}

func (s *Session) completeLocked() {
	s.complete = true
	s.sendGuideLocked()
	closing := s.appendLocked(models.SenderBot, ClosingText, nil)
	s.pendingFeedback = closing.ID
	slog.Debug("Session.complete: structured flow finished", "category", s.category.ID, "issue", s.issue)
}

func (s *Session) sendGuideLocked() {
	var id *models.CategoryID
	if s.category != nil {
		id = &s.category.ID
	}
	msg := s.appendLocked(models.SenderBot, GuideFor(id).Text(), nil)
	s.guideSent = true
	s.pendingFeedback = msg.ID
}

func (s *Session) emitPromptLocked(p models.Prompt) {
	if p.Type == models.PromptTypeChoice {
		s.appendLocked(models.SenderBot, p.Question+ChoiceHintSuffix, &models.MessageMeta{
			Kind:     models.MetaPromptChoice,
			PromptID: p.ID,
			Options:  append([]string(nil), p.Options...),
		})
		return
	}
	s.appendLocked(models.SenderBot, p.Question, nil)
}

func (s *Session) appendLocked(sender models.Sender, text string, meta *models.MessageMeta) models.Message {
	msg := models.Message{
		ID:        s.newID(),
		Sender:    sender,
		Text:      text,
		Meta:      meta,
		CreatedAt: s.clock(),
	}
	s.transcript = append(s.transcript, msg)
	return msg
}

func (s *Session) summaryLinesLocked() []string {
	var lines []string
	if s.issue != "" {
		lines = append(lines, fmt.Sprintf(SummaryIssueFormat, s.issue))
	}
	for _, p := range s.flowLocked().Prompts {
		if a, ok := s.answers[p.ID]; ok {
			lines = append(lines, fmt.Sprintf(SummaryAnswerFormat, p.Question, a))
		}
	}
	return lines
}

func (s *Session) chatMessagesLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(s.transcript)+2)
	if lines := s.summaryLinesLocked(); len(lines) > 0 {
		out = append(out, models.ChatMessage{
			Role:    models.ChatRoleSystem,
			Content: SummaryHeader + "\n" + strings.Join(lines, "\n"),
		})
	}
	if s.category != nil {
		out = append(out, models.ChatMessage{
			Role:    models.ChatRoleSystem,
			Content: fmt.Sprintf(SelectedCategoryFmt, s.category.Label),
		})
	}
	for _, m := range s.transcript {
		out = append(out, models.ChatMessage{Role: models.RoleFor(m.Sender), Content: m.Text})
	}
	return out
}

func (s *Session) historyLocked() string {
	lines := make([]string, 0, len(s.transcript))
	for _, m := range s.transcript {
		lines = append(lines, string(m.Sender)+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

func issueOptionsMeta(f models.Flow) *models.MessageMeta {
	return &models.MessageMeta{
		Kind:    models.MetaIssueOptions,
		Options: append([]string(nil), f.Issues...),
	}
}
