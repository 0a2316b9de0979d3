package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// idHandlers builds repository handlers for records keyed by a string UUID column named id.
func idHandlers[T any](newRecord func() T, id func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			ptr := id(record)
			if ptr == nil {
				return uuid.Nil
			}
			parsed, err := uuid.Parse(strings.TrimSpace(*ptr))
			if err != nil {
				return uuid.Nil
			}
			return parsed
		},
		SetID: func(record T, value uuid.UUID) {
			if ptr := id(record); ptr != nil {
				*ptr = value.String()
			}
		},
		GetIdentifier: func() string { return "id" },
		GetIdentifierValue: func(record T) string {
			if ptr := id(record); ptr != nil {
				return strings.TrimSpace(*ptr)
			}
			return ""
		},
	}
}

func deliveryEventHandlers() repository.ModelHandlers[*deliveryEventRecord] {
	return idHandlers(
		func() *deliveryEventRecord { return &deliveryEventRecord{} },
		func(r *deliveryEventRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
	)
}

func rateLimitStateHandlers() repository.ModelHandlers[*rateLimitStateRecord] {
	return idHandlers(
		func() *rateLimitStateRecord { return &rateLimitStateRecord{} },
		func(r *rateLimitStateRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
	)
}
