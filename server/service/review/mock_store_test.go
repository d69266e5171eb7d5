package review

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hrygo/recall/store"
)

// MockStore is an in-memory implementation of the Store interface for testing.
// It enforces the same version check as the SQL drivers.
type MockStore struct {
	mu       sync.Mutex
	items    map[int32]*store.ReviewItem
	events   []*store.ReviewEvent
	groups   map[int32]*store.Group
	profiles map[int32]*store.RetentionProfile

	nextItemID  int32
	nextEventID int32
	nextGroupID int32

	// beforeApply runs before every ApplyReview takes the lock, so it can simulate
	// a concurrent writer.
	beforeApply func(apply *store.ApplyReview)
	applyCalls  int
	profileErr  error
}

func NewMockStore() *MockStore {
	return &MockStore{
		items:    make(map[int32]*store.ReviewItem),
		groups:   make(map[int32]*store.Group),
		profiles: make(map[int32]*store.RetentionProfile),
	}
}

func cloneItem(item *store.ReviewItem) *store.ReviewItem {
	c := *item
	if item.GroupID != nil {
		g := *item.GroupID
		c.GroupID = &g
	}
	if item.LastReviewedTs != nil {
		ts := *item.LastReviewedTs
		c.LastReviewedTs = &ts
	}
	return &c
}

// addItem inserts an item directly and returns its id.
func (m *MockStore) addItem(item *store.ReviewItem) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItemID++
	item.ID = m.nextItemID
	if item.Version == 0 {
		item.Version = 1
	}
	m.items[item.ID] = cloneItem(item)
	return item.ID
}

// bumpVersion simulates an unrelated write to the item.
func (m *MockStore) bumpVersion(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.Version++
	}
}

func (m *MockStore) item(id int32) *store.ReviewItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		return cloneItem(item)
	}
	return nil
}

func (m *MockStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *MockStore) GetOrCreateReviewItem(ctx context.Context, ownerID int32, contentRef string, init func(*store.ReviewItem)) (*store.ReviewItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.OwnerID == ownerID && item.ContentRef == contentRef {
			return cloneItem(item), false, nil
		}
	}
	m.nextItemID++
	item := &store.ReviewItem{
		ID:         m.nextItemID,
		UID:        "uid",
		OwnerID:    ownerID,
		ContentRef: contentRef,
		Version:    1,
	}
	init(item)
	m.items[item.ID] = item
	return cloneItem(item), true, nil
}

func (m *MockStore) GetReviewItem(ctx context.Context, find *store.FindReviewItem) (*store.ReviewItem, error) {
	list, err := m.ListReviewItems(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *MockStore) ListReviewItems(ctx context.Context, find *store.FindReviewItem) ([]*store.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*store.ReviewItem, 0)
	for _, item := range m.items {
		if find.ID != nil && item.ID != *find.ID {
			continue
		}
		if find.OwnerID != nil && item.OwnerID != *find.OwnerID {
			continue
		}
		if find.ContentRef != nil && item.ContentRef != *find.ContentRef {
			continue
		}
		if find.GroupID != nil && (item.GroupID == nil || *item.GroupID != *find.GroupID) {
			continue
		}
		if find.DueBeforeTs != nil && item.DueTs > *find.DueBeforeTs {
			continue
		}
		result = append(result, cloneItem(item))
	}

	sort.Slice(result, func(i, j int) bool {
		if find.OrderByDue && result[i].DueTs != result[j].DueTs {
			return result[i].DueTs < result[j].DueTs
		}
		return result[i].ID < result[j].ID
	})
	if find.Offset != nil && *find.Offset < len(result) {
		result = result[*find.Offset:]
	}
	if find.Limit != nil && *find.Limit < len(result) {
		result = result[:*find.Limit]
	}
	return result, nil
}

func (m *MockStore) CountReviewItems(ctx context.Context, find *store.FindReviewItem) (int, error) {
	unlimited := *find
	unlimited.Limit = nil
	unlimited.Offset = nil
	list, err := m.ListReviewItems(ctx, &unlimited)
	return len(list), err
}

func (m *MockStore) UpdateReviewItem(ctx context.Context, update *store.UpdateReviewItem) (*store.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[update.ID]
	if !ok {
		return nil, errors.New("review item not found")
	}
	if update.ClearGroupID {
		item.GroupID = nil
	} else if update.GroupID != nil {
		g := *update.GroupID
		item.GroupID = &g
	}
	if update.UpdatedTs != 0 {
		item.UpdatedTs = update.UpdatedTs
	}
	return cloneItem(item), nil
}

func (m *MockStore) ApplyReview(ctx context.Context, apply *store.ApplyReview) (*store.ReviewItem, error) {
	if m.beforeApply != nil {
		m.beforeApply(apply)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++

	current, ok := m.items[apply.Item.ID]
	if !ok || current.Version != apply.ExpectedVersion {
		return nil, store.ErrVersionConflict
	}
	next := cloneItem(apply.Item)
	next.Version = current.Version + 1
	next.GroupID = current.GroupID
	m.items[next.ID] = next

	m.nextEventID++
	event := *apply.Event
	event.ID = m.nextEventID
	apply.Event.ID = event.ID
	m.events = append(m.events, &event)
	return cloneItem(next), nil
}

func (m *MockStore) DeleteReviewItem(ctx context.Context, del *store.DeleteReviewItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteItemLocked(del.ID)
	return nil
}

func (m *MockStore) deleteItemLocked(id int32) {
	delete(m.items, id)
	kept := m.events[:0]
	for _, e := range m.events {
		if e.ItemID != id {
			kept = append(kept, e)
		}
	}
	m.events = kept
}

func (m *MockStore) ListReviewEvents(ctx context.Context, find *store.FindReviewEvent) ([]*store.ReviewEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*store.ReviewEvent, 0)
	for _, e := range m.events {
		if find.ItemID != nil && e.ItemID != *find.ItemID {
			continue
		}
		if find.OwnerID != nil && e.OwnerID != *find.OwnerID {
			continue
		}
		c := *e
		result = append(result, &c)
	}
	return result, nil
}

func (m *MockStore) CreateGroup(ctx context.Context, create *store.Group) (*store.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGroupID++
	group := *create
	group.ID = m.nextGroupID
	m.groups[group.ID] = &group
	c := group
	return &c, nil
}

func (m *MockStore) GetGroup(ctx context.Context, find *store.FindGroup) (*store.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if find.ID == nil {
		return nil, nil
	}
	group, ok := m.groups[*find.ID]
	if !ok {
		return nil, nil
	}
	c := *group
	return &c, nil
}

func (m *MockStore) DeleteGroup(ctx context.Context, del *store.DeleteGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, item := range m.items {
		if item.GroupID == nil || *item.GroupID != del.ID {
			continue
		}
		if del.Cascade {
			m.deleteItemLocked(id)
		} else {
			item.GroupID = nil
			if del.UpdatedTs != 0 {
				item.UpdatedTs = del.UpdatedTs
			}
		}
	}
	delete(m.groups, del.ID)
	return nil
}

func (m *MockStore) GetRetentionProfile(ctx context.Context, ownerID int32) (*store.RetentionProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	if p, ok := m.profiles[ownerID]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}
