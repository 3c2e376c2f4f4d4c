package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Ticket category names understood by the ticket service.
const (
	TicketCategoryHardware = "Hardware"
	TicketCategorySoftware = "Software"
	TicketCategoryRede     = "Rede"
	TicketCategorySO       = "Sistema Operacional"
	TicketCategoryAcesso   = "Acesso/Security"
	TicketCategoryOutros   = "Outros"
)

// Level is the support tier a ticket is routed to.
type Level string

const (
	LevelN1 Level = "N1"
	LevelN2 Level = "N2"
	LevelN3 Level = "N3"
)

// Priority ids of the ticket service.
const (
	PriorityBaixa   = 1
	PriorityMedia   = 2
	PriorityAlta    = 3
	PriorityCritica = 4
)

// OriginMobile marks tickets opened from the mobile chat.
const OriginMobile = "mobile"

// Ticket message sender types.
const (
	TicketSenderUser    = "user"
	TicketSenderSistema = "sistema"
)

var ticketCategoryIDs = map[string]int{
	TicketCategoryHardware: 1,
	TicketCategorySoftware: 2,
	TicketCategoryRede:     3,
	TicketCategorySO:       4,
	TicketCategoryAcesso:   5,
	TicketCategoryOutros:   6,
}

var levelIDs = map[Level]int{
	LevelN1: 1,
	LevelN2: 2,
	LevelN3: 3,
}

// TicketCategoryID returns the service id of a ticket category name.
// Unknown names map to Outros.
func TicketCategoryID(name string) int {
	if id, ok := ticketCategoryIDs[name]; ok {
		return id
	}
	return ticketCategoryIDs[TicketCategoryOutros]
}

// LevelID returns the service id of a level. Unknown levels map to N1.
func LevelID(l Level) int {
	if id, ok := levelIDs[l]; ok {
		return id
	}
	return levelIDs[LevelN1]
}

// FlexID is an identifier that the backend may encode as a JSON string or number.
type FlexID string

// UnmarshalJSON accepts strings, numbers and null.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// MarshalJSON emits integer-looking ids as numbers and everything else as strings.
func (f FlexID) MarshalJSON() ([]byte, error) {
	if f == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

// String implements fmt.Stringer.
func (f FlexID) String() string {
	return string(f)
}

// User is the authenticated requester returned by GET /auth/me.
type User struct {
	UserID FlexID   `json:"userId"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// CreateTicketRequest is the body of POST /tickets.
type CreateTicketRequest struct {
	RequesterID     FlexID  `json:"requesterId"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	CategoryID      int     `json:"categoryId"`
	LevelID         int     `json:"levelId"`
	PriorityID      int     `json:"priorityId"`
	AssigneeID      *FlexID `json:"assigneeId"`
	InitialStatusID *int    `json:"initialStatusId"`
	Origin          string  `json:"origin"`
}

// CreatedTicket is the response of POST /tickets.
type CreatedTicket struct {
	TicketID FlexID `json:"ticketId"`
	Protocol FlexID `json:"protocol"`
}

// TicketMessage is the body of POST /tickets/{id}/messages.
type TicketMessage struct {
	SenderType   string  `json:"senderType"`
	SenderUserID *FlexID `json:"senderUserId"`
	Content      string  `json:"content"`
}

// TicketDraft is the ticket assembled from a triage session before submission.
type TicketDraft struct {
	RequesterID  FlexID `json:"requester_id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CategoryName string `json:"category_name"`
	Level        Level  `json:"level"`
	PriorityID   int    `json:"priority_id"`
	Origin       string `json:"origin"`
	LastUserText string `json:"last_user_text,omitempty"`
	History      string `json:"history"`
}

// Request converts the draft into the ticket service request body.
func (d TicketDraft) Request() CreateTicketRequest {
	return CreateTicketRequest{
		RequesterID: d.RequesterID,
		Title:       d.Title,
		Description: d.Description,
		CategoryID:  TicketCategoryID(d.CategoryName),
		LevelID:     LevelID(d.Level),
		PriorityID:  d.PriorityID,
		Origin:      d.Origin,
	}
}
