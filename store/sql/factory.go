package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/goliatone/go-messaging/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every SQL store over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	deliveryStore       *WebhookDeliveryStore
	deliveryEventStore  *DeliveryEventStore
	rateLimitStateStore *RateLimitStateStore
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewRepositoryFactoryFromDB(client.DB())
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{}
	if err := factory.build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) DeliveryLedger() webhooks.DeliveryLedger {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) DeliveryEventStore() *DeliveryEventStore {
	if f == nil {
		return nil
	}
	return f.deliveryEventStore
}

func (f *RepositoryFactory) RateLimitStateStore() ratelimit.StateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

// CachedRateLimitStateStore wraps the SQL state store with cacheService.
func (f *RepositoryFactory) CachedRateLimitStateStore(
	cacheService repositorycache.CacheService,
) (*CachedRateLimitStateStore, error) {
	if f == nil || f.rateLimitStateStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not configured")
	}
	return NewCachedRateLimitStateStore(f.rateLimitStateStore, cacheService)
}

func (f *RepositoryFactory) build(db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	f.db = db

	deliveryStore, err := NewWebhookDeliveryStore(db)
	if err != nil {
		return err
	}
	eventStore, err := NewDeliveryEventStore(db)
	if err != nil {
		return err
	}
	stateStore, err := NewRateLimitStateStore(db)
	if err != nil {
		return err
	}
	f.deliveryStore = deliveryStore
	f.deliveryEventStore = eventStore
	f.rateLimitStateStore = stateStore
	return nil
}
