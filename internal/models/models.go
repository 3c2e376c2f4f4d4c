// Package models defines the core data structures for HelpLine.
//
// It includes the triage catalog types, transcript messages and the wire
// shapes exchanged with the identity, ticket and assistant services.
package models

import (
	"errors"
	"time"
)

// CategoryID identifies a support category.
type CategoryID string

const (
	CategoryHardware CategoryID = "hardware"
	CategorySoftware CategoryID = "software"
	CategoryRede     CategoryID = "rede"
	CategoryAcesso   CategoryID = "acesso"
	CategoryInfra    CategoryID = "infra"
	CategoryOutros   CategoryID = "outros"
)

// Category is an immutable support category shown at the start of triage.
type Category struct {
	ID          CategoryID `json:"id"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	// TicketName is the ticket category name used when escalating.
	TicketName string `json:"ticket_name"`
}

// PromptType defines how a triage prompt is answered.
type PromptType string

const (
	// PromptTypeChoice is answered by picking one of the listed options.
	PromptTypeChoice PromptType = "choice"
	// PromptTypeText is answered with free text.
	PromptTypeText PromptType = "text"
)

// Validation constants for catalog entries
const (
	// MinChoiceOptionsCount is the minimum number of options a choice prompt must offer
	MinChoiceOptionsCount = 2
	// MaxQuestionLength bounds the question text of a prompt
	MaxQuestionLength = 500
)

// Error variables for catalog validation
var (
	ErrEmptyPromptID          = errors.New("prompt id cannot be empty")
	ErrEmptyQuestion          = errors.New("prompt question cannot be empty")
	ErrQuestionTooLong        = errors.New("prompt question exceeds maximum length")
	ErrInvalidPromptType      = errors.New("invalid prompt type")
	ErrMissingChoiceOptions   = errors.New("choice prompts require options")
	ErrInsufficientOptions    = errors.New("insufficient choice options")
	ErrEmptyOption            = errors.New("choice option cannot be empty")
	ErrOptionsOnTextPrompt    = errors.New("text prompts cannot declare options")
	ErrDuplicatePromptID      = errors.New("duplicate prompt id")
	ErrEmptyIssue             = errors.New("issue label cannot be empty")
	ErrDuplicateIssue         = errors.New("duplicate issue label")
	ErrMissingFlow            = errors.New("category has no flow")
	ErrFlowForUnknownCategory = errors.New("flow declared for unknown category")
	ErrDuplicateCategory      = errors.New("duplicate category id")
)

// IsValidPromptType checks if the given prompt type is supported.
func IsValidPromptType(pt PromptType) bool {
	switch pt {
	case PromptTypeChoice, PromptTypeText:
		return true
	default:
		return false
	}
}

// Prompt is one structured question of a triage flow.
type Prompt struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Type        PromptType `json:"type"`
	Options     []string   `json:"options,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
}

// Validate checks a single prompt definition.
func (p *Prompt) Validate() error {
	if p.ID == "" {
		return ErrEmptyPromptID
	}
	if p.Question == "" {
		return ErrEmptyQuestion
	}
	if len(p.Question) > MaxQuestionLength {
		return ErrQuestionTooLong
	}
	if !IsValidPromptType(p.Type) {
		return ErrInvalidPromptType
	}

	switch p.Type {
	case PromptTypeChoice:
		return p.validateChoice()
	case PromptTypeText:
		if len(p.Options) > 0 {
			return ErrOptionsOnTextPrompt
		}
	}
	return nil
}

func (p *Prompt) validateChoice() error {
	if len(p.Options) == 0 {
		return ErrMissingChoiceOptions
	}
	if len(p.Options) < MinChoiceOptionsCount {
		return ErrInsufficientOptions
	}
	for _, opt := range p.Options {
		if opt == "" {
			return ErrEmptyOption
		}
	}
	return nil
}

// HasOption reports whether option is one of the prompt's choices.
func (p Prompt) HasOption(option string) bool {
	for _, o := range p.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Flow is the ordered set of issues and prompts of one category.
type Flow struct {
	Issues  []string `json:"issues"`
	Prompts []Prompt `json:"prompts"`
}

// Validate checks issue labels and prompts for a flow.
func (f *Flow) Validate() error {
	seenIssues := make(map[string]bool, len(f.Issues))
	for _, issue := range f.Issues {
		if issue == "" {
			return ErrEmptyIssue
		}
		if seenIssues[issue] {
			return ErrDuplicateIssue
		}
		seenIssues[issue] = true
	}

	seen := make(map[string]bool, len(f.Prompts))
	for i := range f.Prompts {
		if err := f.Prompts[i].Validate(); err != nil {
			return err
		}
		if seen[f.Prompts[i].ID] {
			return ErrDuplicatePromptID
		}
		seen[f.Prompts[i].ID] = true
	}
	return nil
}

// HasIssue reports whether the flow lists the given issue.
func (f Flow) HasIssue(issue string) bool {
	for _, i := range f.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// Sender identifies the author of a transcript message.
type Sender string

const (
	SenderUser    Sender = "user"
	SenderBot     Sender = "bot"
	SenderSystem  Sender = "system"
	SenderAnalyst Sender = "analyst"
)

// MetaKind tags structured payloads attached to bot messages.
type MetaKind string

const (
	// MetaIssueOptions carries the issue list of the selected category.
	MetaIssueOptions MetaKind = "issue-options"
	// MetaPromptChoice carries the options of a choice prompt.
	MetaPromptChoice MetaKind = "prompt-choice"
)

// MessageMeta is the optional structured payload of a message.
type MessageMeta struct {
	Kind     MetaKind `json:"kind"`
	PromptID string   `json:"prompt_id,omitempty"`
	Options  []string `json:"options"`
}

// Message is one immutable transcript entry.
type Message struct {
	ID        string       `json:"id"`
	Sender    Sender       `json:"sender"`
	Text      string       `json:"text"`
	Meta      *MessageMeta `json:"meta,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ChatRole is the role of a message sent to the assistant service.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is the role/content pair exchanged with the assistant service.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// RoleFor maps a transcript sender to an assistant role.
func RoleFor(s Sender) ChatRole {
	switch s {
	case SenderUser:
		return ChatRoleUser
	case SenderSystem:
		return ChatRoleSystem
	default:
		return ChatRoleAssistant
	}
}
