package core

import "time"

type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusQueued, MessageStatusDelivered, MessageStatusFailed:
		return true
	default:
		return false
	}
}

const (
	DefaultPageIndex = 1
	DefaultPageSize  = 10
	MaxPageSize      = 100
)

type CreateContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type UpdateContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ListContactsRequest struct {
	PageIndex int
	Max       int
}

type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ContactPage struct {
	Contacts   []Contact `json:"contactsList"`
	PageNumber int       `json:"pageNumber"`
	PageSize   int       `json:"pageSize"`
}

type SendMessageRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

type ListMessagesRequest struct {
	Page  int
	Limit int
}

type Message struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

type MessagePage struct {
	Messages        []Message `json:"messages"`
	Page            int       `json:"page"`
	QuantityPerPage int       `json:"quantityPerPage"`
}

// DeliveryEvent is the body of a delivery status webhook.
type DeliveryEvent struct {
	ID          string        `json:"id"`
	Status      MessageStatus `json:"status"`
	DeliveredAt string        `json:"deliveredAt,omitempty"`
}

// DeliveredTime parses DeliveredAt. ok is false when the field is absent or malformed.
func (e DeliveryEvent) DeliveredTime() (time.Time, bool) {
	if e.DeliveredAt == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, e.DeliveredAt)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// DedupeKey identifies one status transition of one message.
func (e DeliveryEvent) DedupeKey() string {
	return e.ID + ":" + string(e.Status)
}

func (r ListContactsRequest) withDefaults() ListContactsRequest {
	if r.PageIndex == 0 {
		r.PageIndex = DefaultPageIndex
	}
	if r.Max == 0 {
		r.Max = DefaultPageSize
	}
	return r
}

func (r ListMessagesRequest) withDefaults() ListMessagesRequest {
	if r.Page == 0 {
		r.Page = DefaultPageIndex
	}
	if r.Limit == 0 {
		r.Limit = DefaultPageSize
	}
	return r
}
