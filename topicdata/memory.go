package topicdata

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/value"
)

// MemoryStore keeps topic rows in process. It is safe for concurrent use;
// transactions are serialized and undone from a journal on failure.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]map[string]any
	txMu sync.Mutex
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string][]map[string]any),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ServiceFor returns the service of a topic scoped to the principal's tenant.
func (s *MemoryStore) ServiceFor(_ context.Context, topic *model.Topic, p principal.Principal) (Service, error) {
	if topic == nil {
		return nil, apperrors.InvalidDefinition("topic is required")
	}
	return &memoryService{store: s, topic: topic, tenantID: p.TenantID}, nil
}

// Rows returns a copy of every row stored for a topic, across tenants.
func (s *MemoryStore) Rows(topicID string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, len(s.rows[topicID]))
	for i, row := range s.rows[topicID] {
		out[i] = value.CopyMap(row)
	}
	return out
}

type memoryTx struct {
	undo []func()
}

type memoryService struct {
	store    *MemoryStore
	topic    *model.Topic
	tenantID string
}

func (m *memoryService) Topic() *model.Topic { return m.topic }

func (m *memoryService) EntityHelper() EntityHelper { return NewEntityHelper(m.topic) }

func (m *memoryService) visible(row map[string]any) bool {
	return m.tenantID == "" || value.ToString(row[model.ColumnTenantID]) == m.tenantID
}

// journal records an undo step when ctx belongs to a transaction.
// Callers hold store.mu.
func (m *memoryService) journal(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*memoryTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (m *memoryService) snapshot() []map[string]any {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var out []map[string]any
	for _, row := range m.store.rows[m.topic.TopicID] {
		if m.visible(row) {
			out = append(out, value.CopyMap(row))
		}
	}
	return out
}

func (m *memoryService) Find(_ context.Context, criteria Criteria) ([]map[string]any, error) {
	rows, err := filterRows(m.snapshot(), criteria)
	if err != nil {
		return nil, apperrors.Storage("find", err)
	}
	return rows, nil
}

func (m *memoryService) FindStraightValues(ctx context.Context, columns []string, criteria Criteria) ([]map[string]any, error) {
	rows, err := m.Find(ctx, criteria)
	if err != nil {
		return nil, err
	}
	helper := m.EntityHelper()
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = helper.Project(row, columns)
	}
	return out, nil
}

func (m *memoryService) FindDistinctValues(ctx context.Context, columns []string, criteria Criteria) ([]map[string]any, error) {
	rows, err := m.FindStraightValues(ctx, columns, criteria)
	if err != nil {
		return nil, err
	}
	return distinctRows(rows), nil
}

func (m *memoryService) Exists(ctx context.Context, criteria Criteria) (bool, error) {
	rows, err := m.Find(ctx, criteria)
	return len(rows) > 0, err
}

func (m *memoryService) Count(ctx context.Context, criteria Criteria) (int64, error) {
	rows, err := m.Find(ctx, criteria)
	return int64(len(rows)), err
}

func (m *memoryService) Page(ctx context.Context, criteria Criteria, pageable Pageable) (*DataPage, error) {
	rows, err := m.Find(ctx, criteria)
	if err != nil {
		return nil, err
	}
	return paginate(rows, pageable), nil
}

func (m *memoryService) Insert(ctx context.Context, row map[string]any) (map[string]any, error) {
	stored := prepareInsert(row, m.tenantID, m.store.now())
	id := value.ToString(stored[model.ColumnID])

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	topicID := m.topic.TopicID
	for _, existing := range m.store.rows[topicID] {
		if value.ToString(existing[model.ColumnID]) == id {
			return nil, apperrors.Storage("insert", apperrors.Newf(apperrors.ErrCodeInvalidInput, "duplicate id %s", id))
		}
	}
	m.store.rows[topicID] = append(m.store.rows[topicID], stored)
	m.journal(ctx, func() { m.removeLocked(id) })
	return value.CopyMap(stored), nil
}

// indexLocked returns the position of a visible row. Callers hold store.mu.
func (m *memoryService) indexLocked(id string) int {
	for i, row := range m.store.rows[m.topic.TopicID] {
		if value.ToString(row[model.ColumnID]) == id && m.visible(row) {
			return i
		}
	}
	return -1
}

func (m *memoryService) removeLocked(id string) {
	if i := m.indexLocked(id); i >= 0 {
		rows := m.store.rows[m.topic.TopicID]
		m.store.rows[m.topic.TopicID] = append(rows[:i:i], rows[i+1:]...)
	}
}

func (m *memoryService) replaceLocked(ctx context.Context, i int, row map[string]any) {
	rows := m.store.rows[m.topic.TopicID]
	old := rows[i]
	rows[i] = row
	id := value.ToString(old[model.ColumnID])
	m.journal(ctx, func() {
		if j := m.indexLocked(id); j >= 0 {
			m.store.rows[m.topic.TopicID][j] = old
		}
	})
}

func (m *memoryService) UpdateByIDAndVersion(ctx context.Context, id string, version int64, row map[string]any) (map[string]any, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, nil
	}
	stored := m.store.rows[m.topic.TopicID][i]
	if m.EntityHelper().VersionOf(stored) != version {
		return nil, nil
	}
	next := prepareUpdate(stored, row, version, m.store.now())
	m.replaceLocked(ctx, i, next)
	return value.CopyMap(next), nil
}

func (m *memoryService) UpdateWithLockByID(ctx context.Context, id string, row map[string]any) (map[string]any, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, nil
	}
	stored := m.store.rows[m.topic.TopicID][i]
	next := prepareUpdate(stored, row, m.EntityHelper().VersionOf(stored), m.store.now())
	m.replaceLocked(ctx, i, next)
	return value.CopyMap(next), nil
}

func (m *memoryService) DeleteByIDAndVersion(ctx context.Context, id string, version int64) (int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return 0, nil
	}
	stored := m.store.rows[m.topic.TopicID][i]
	if m.EntityHelper().VersionOf(stored) != version {
		return 0, nil
	}
	m.removeLocked(id)
	m.journal(ctx, func() {
		m.store.rows[m.topic.TopicID] = append(m.store.rows[m.topic.TopicID], stored)
	})
	return 1, nil
}

func (m *memoryService) FindAndLockByID(_ context.Context, id string) (map[string]any, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, apperrors.NotFound(m.topic.Name, id)
	}
	return value.CopyMap(m.store.rows[m.topic.TopicID][i]), nil
}

func (m *memoryService) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Service) error) (err error) {
	if InTransaction(ctx) {
		return apperrors.New(apperrors.ErrCodeNestedTransaction, "topic transaction is already open")
	}
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	tx := &memoryTx{}
	rollback := func() {
		m.store.mu.Lock()
		defer m.store.mu.Unlock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()
	if err = fn(withTxMarker(ctx, tx), m); err != nil {
		rollback()
	}
	return err
}
