package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// StoredDeliveryEvent is one persisted webhook delivery event.
type StoredDeliveryEvent struct {
	ID         string
	Source     string
	Delivery   core.DeliveryEvent
	Attempt    int
	RequestID  string
	Metadata   map[string]any
	ReceivedAt time.Time
}

type DeliveryEventFilter struct {
	MessageID string
	Status    core.MessageStatus
	Source    string
	Page      int
	PerPage   int
}

type DeliveryEventPage struct {
	Items   []StoredDeliveryEvent
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

// DeliveryEventStore appends verified delivery events. It is a webhooks.EventHandler
// so the receiver can persist events directly.
type DeliveryEventStore struct {
	repo repository.Repository[*deliveryEventRecord]
	now  func() time.Time
}

func NewDeliveryEventStore(db *bun.DB) (*DeliveryEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryEventRecord](db, deliveryEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery event repository wiring: %w", err)
		}
	}
	return &DeliveryEventStore{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *DeliveryEventStore) HandleEvent(ctx context.Context, event webhooks.Event) error {
	_, err := s.Append(ctx, event, nil)
	return err
}

// Append stores event. metadata passes through RedactMetadata first.
func (s *DeliveryEventStore) Append(
	ctx context.Context,
	event webhooks.Event,
	metadata map[string]any,
) (StoredDeliveryEvent, error) {
	if s == nil || s.repo == nil {
		return StoredDeliveryEvent{}, fmt.Errorf("sqlstore: delivery event store is not configured")
	}
	if err := event.Delivery.Validate(); err != nil {
		return StoredDeliveryEvent{}, core.NewValidationError("sqlstore: invalid delivery event", core.FieldErrors(err, "")...)
	}
	source := strings.TrimSpace(event.Source)
	if source == "" {
		source = webhooks.DefaultSource
	}
	receivedAt := event.ReceivedAt.UTC()
	if event.ReceivedAt.IsZero() {
		receivedAt = s.now()
	}
	attempt := event.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	created, err := s.repo.Create(ctx, &deliveryEventRecord{
		Source:      source,
		MessageID:   strings.TrimSpace(event.Delivery.ID),
		Status:      string(event.Delivery.Status),
		DeliveredAt: strings.TrimSpace(event.Delivery.DeliveredAt),
		Attempt:     attempt,
		RequestID:   strings.TrimSpace(event.RequestID),
		Metadata:    RedactMetadata(metadata),
		ReceivedAt:  receivedAt,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return StoredDeliveryEvent{}, err
	}
	return created.toDomain(), nil
}

// List returns events newest first.
func (s *DeliveryEventStore) List(ctx context.Context, filter DeliveryEventFilter) (DeliveryEventPage, error) {
	if s == nil || s.repo == nil {
		return DeliveryEventPage{}, fmt.Errorf("sqlstore: delivery event store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = core.DefaultPageIndex
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = core.DefaultPageSize
	}
	if perPage > core.MaxPageSize {
		perPage = core.MaxPageSize
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("received_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if messageID := strings.TrimSpace(filter.MessageID); messageID != "" {
		selectors = append(selectors, repository.SelectBy("message_id", "=", messageID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if source := strings.TrimSpace(filter.Source); source != "" {
		selectors = append(selectors, repository.SelectBy("source", "=", source))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return DeliveryEventPage{}, err
	}
	items := make([]StoredDeliveryEvent, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return DeliveryEventPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// Latest returns the most recent event for a message.
func (s *DeliveryEventStore) Latest(ctx context.Context, messageID string) (StoredDeliveryEvent, error) {
	page, err := s.List(ctx, DeliveryEventFilter{MessageID: messageID, PerPage: 1})
	if err != nil {
		return StoredDeliveryEvent{}, err
	}
	if len(page.Items) == 0 {
		return StoredDeliveryEvent{}, core.NewError(core.KindNotFound, fmt.Sprintf("sqlstore: no delivery events for message %q", messageID), 0, nil)
	}
	return page.Items[0], nil
}

func (r *deliveryEventRecord) toDomain() StoredDeliveryEvent {
	if r == nil {
		return StoredDeliveryEvent{}
	}
	return StoredDeliveryEvent{
		ID:     r.ID,
		Source: r.Source,
		Delivery: core.DeliveryEvent{
			ID:          r.MessageID,
			Status:      core.MessageStatus(r.Status),
			DeliveredAt: r.DeliveredAt,
		},
		Attempt:    r.Attempt,
		RequestID:  r.RequestID,
		Metadata:   copyAnyMap(r.Metadata),
		ReceivedAt: r.ReceivedAt,
	}
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
