package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayline/internal/domain"
)

// Memory is an in-process notebook. Fail, when set, is consulted before
// every call so tests can inject transient remote failures.
type Memory struct {
	Now  func() time.Time
	Fail func(op string) error

	mu          sync.Mutex
	pages       map[string]string // name -> remote id
	collections map[string]map[string]Item
}

func NewMemory() *Memory {
	return &Memory{
		Now:         time.Now,
		pages:       map[string]string{},
		collections: map[string]map[string]Item{},
	}
}

func (m *Memory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, domain.ErrMirrorTimeout)
	}
	if m.Fail != nil {
		if err := m.Fail(op); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) stamp() string {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (m *Memory) UpsertPage(ctx context.Context, name string) (string, error) {
	if err := m.check(ctx, "upsert-page"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.pages[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.pages[name] = id
	return id, nil
}

func (m *Memory) UpsertCollection(ctx context.Context, name string, schema []string) (string, error) {
	if err := m.check(ctx, "upsert-collection"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = map[string]Item{}
	}
	return name, nil
}

func (m *Memory) ListItems(ctx context.Context, collection string) ([]Item, error) {
	if err := m.check(ctx, "list-items"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.collections[collection]
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out, nil
}

func (m *Memory) LoadItem(ctx context.Context, collection, remoteID string) (Item, error) {
	if err := m.check(ctx, "load-item"); err != nil {
		return Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.collections[collection][remoteID]
	if !ok {
		return Item{}, fmt.Errorf("item %s in %s: %w", remoteID, collection, domain.ErrNotFound)
	}
	return it, nil
}

func (m *Memory) SaveItem(ctx context.Context, collection string, item Item) (Item, error) {
	if err := m.check(ctx, "save-item"); err != nil {
		return Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Item{}
	}
	if item.RemoteID == "" {
		item.RemoteID = uuid.NewString()
	}
	item.LastEditedTime = m.stamp()
	m.collections[collection][item.RemoteID] = item
	return item, nil
}

func (m *Memory) RemoveItem(ctx context.Context, collection, remoteID string) error {
	if err := m.check(ctx, "remove-item"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection][remoteID]; !ok {
		return fmt.Errorf("item %s in %s: %w", remoteID, collection, domain.ErrNotFound)
	}
	delete(m.collections[collection], remoteID)
	return nil
}

func (m *Memory) LinkItem(ctx context.Context, collection, remoteID, refID string) error {
	if err := m.check(ctx, "link-item"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.collections[collection][remoteID]
	if !ok {
		return fmt.Errorf("item %s in %s: %w", remoteID, collection, domain.ErrNotFound)
	}
	it.RefID = refID
	m.collections[collection][remoteID] = it
	return nil
}

func (m *Memory) DropAll(ctx context.Context) error {
	if err := m.check(ctx, "drop-all"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = map[string]string{}
	m.collections = map[string]map[string]Item{}
	return nil
}

// Seed inserts a remote record directly, bypassing the capability
// surface. Test helper.
func (m *Memory) Seed(collection string, item Item) Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Item{}
	}
	if item.RemoteID == "" {
		item.RemoteID = uuid.NewString()
	}
	if item.LastEditedTime == "" {
		item.LastEditedTime = m.stamp()
	}
	m.collections[collection][item.RemoteID] = item
	return item
}
