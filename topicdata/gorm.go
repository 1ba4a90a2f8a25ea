package topicdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/watchmen-go/kernel/database"
	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/value"
)

// Record is the persisted form of a topic row. Factor values are kept as a
// JSON document; reserved columns are real columns so id, version and
// tenant filters run in SQL.
type Record struct {
	ID         string    `gorm:"column:id_;primaryKey;size:64"`
	TopicID    string    `gorm:"column:topic_id;size:64;index:idx_topic_tenant"`
	TenantID   string    `gorm:"column:tenant_id_;size:64;index:idx_topic_tenant"`
	Version    int64     `gorm:"column:version_"`
	Data       string    `gorm:"column:data;type:text"`
	InsertTime time.Time `gorm:"column:insert_time_"`
	UpdateTime time.Time `gorm:"column:update_time_"`
}

// TableName pins the table name.
func (Record) TableName() string { return "topic_data" }

// GormStore persists topic rows through GORM.
type GormStore struct {
	db  *database.DB
	now func() time.Time
}

// NewGormStore creates a store over an open database, migrating the
// topic_data table when the database is configured to.
func NewGormStore(db *database.DB) (*GormStore, error) {
	if db.Config().AutoMigrate {
		if err := db.AutoMigrate(&Record{}); err != nil {
			return nil, err
		}
	}
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ServiceFor returns the service of a topic scoped to the principal's tenant.
func (s *GormStore) ServiceFor(_ context.Context, topic *model.Topic, p principal.Principal) (Service, error) {
	if topic == nil {
		return nil, apperrors.InvalidDefinition("topic is required")
	}
	return &gormService{store: s, conn: s.db.GormDB, topic: topic, tenantID: p.TenantID}, nil
}

type gormService struct {
	store    *GormStore
	conn     *gorm.DB
	topic    *model.Topic
	tenantID string
}

func (g *gormService) Topic() *model.Topic { return g.topic }

func (g *gormService) EntityHelper() EntityHelper { return NewEntityHelper(g.topic) }

func (g *gormService) scoped(ctx context.Context) *gorm.DB {
	q := g.conn.WithContext(ctx).Model(&Record{}).Where("topic_id = ?", g.topic.TopicID)
	if g.tenantID != "" {
		q = q.Where("tenant_id_ = ?", g.tenantID)
	}
	return q
}

func (g *gormService) load(ctx context.Context, criteria Criteria) ([]map[string]any, error) {
	q := pushDown(g.scoped(ctx), criteria)
	var records []Record
	if err := q.Order("insert_time_, id_").Find(&records).Error; err != nil {
		return nil, database.FromDatabase(err, "find")
	}
	rows := make([]map[string]any, 0, len(records))
	for i := range records {
		row, err := decodeRecord(&records[i])
		if err != nil {
			return nil, apperrors.Storage("decode", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// pushDown narrows q by the equality conditions on id_ and version_ found
// in the top-level conjunction of c. Factor values live in the JSON data
// column and are compared in Go by Find.
func pushDown(q *gorm.DB, c Criteria) *gorm.DB {
	if c.IsJoint() {
		if c.Joint != model.JointAnd {
			return q
		}
		for _, child := range c.Children {
			q = pushDown(q, child)
		}
		return q
	}
	if c.Operator != model.OperatorEquals || c.Value == nil {
		return q
	}
	switch c.Column {
	case model.ColumnID:
		return q.Where("id_ = ?", value.ToString(c.Value))
	case model.ColumnVersion:
		if n, ok := value.ToNumber(c.Value); ok {
			if version, ok := n.Value().(int64); ok {
				return q.Where("version_ = ?", version)
			}
		}
	}
	return q
}

func (g *gormService) Find(ctx context.Context, criteria Criteria) ([]map[string]any, error) {
	rows, err := g.load(ctx, criteria)
	if err != nil {
		return nil, err
	}
	matched, err := filterRows(rows, criteria)
	if err != nil {
		return nil, apperrors.Storage("find", err)
	}
	return matched, nil
}

func (g *gormService) FindStraightValues(ctx context.Context, columns []string, criteria Criteria) ([]map[string]any, error) {
	rows, err := g.Find(ctx, criteria)
	if err != nil {
		return nil, err
	}
	helper := g.EntityHelper()
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = helper.Project(row, columns)
	}
	return out, nil
}

func (g *gormService) FindDistinctValues(ctx context.Context, columns []string, criteria Criteria) ([]map[string]any, error) {
	rows, err := g.FindStraightValues(ctx, columns, criteria)
	if err != nil {
		return nil, err
	}
	return distinctRows(rows), nil
}

func (g *gormService) Exists(ctx context.Context, criteria Criteria) (bool, error) {
	if criteria.IsZero() {
		var count int64
		if err := g.scoped(ctx).Limit(1).Count(&count).Error; err != nil {
			return false, database.FromDatabase(err, "exists")
		}
		return count > 0, nil
	}
	rows, err := g.Find(ctx, criteria)
	return len(rows) > 0, err
}

func (g *gormService) Count(ctx context.Context, criteria Criteria) (int64, error) {
	if criteria.IsZero() {
		var count int64
		if err := g.scoped(ctx).Count(&count).Error; err != nil {
			return 0, database.FromDatabase(err, "count")
		}
		return count, nil
	}
	rows, err := g.Find(ctx, criteria)
	return int64(len(rows)), err
}

func (g *gormService) Page(ctx context.Context, criteria Criteria, pageable Pageable) (*DataPage, error) {
	rows, err := g.Find(ctx, criteria)
	if err != nil {
		return nil, err
	}
	return paginate(rows, pageable), nil
}

func (g *gormService) Insert(ctx context.Context, row map[string]any) (map[string]any, error) {
	stored := prepareInsert(row, g.tenantID, g.store.now())
	rec, err := g.encodeRecord(stored)
	if err != nil {
		return nil, apperrors.Storage("encode", err)
	}
	if err := g.conn.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, database.FromDatabase(err, "insert")
	}
	return stored, nil
}

func (g *gormService) update(ctx context.Context, id string, version *int64, row map[string]any) (map[string]any, error) {
	stored, err := g.findByID(ctx, g.scoped(ctx), id)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	current := g.EntityHelper().VersionOf(stored)
	if version != nil && current != *version {
		return nil, nil
	}
	next := prepareUpdate(stored, row, current, g.store.now())
	data, err := encodeData(next)
	if err != nil {
		return nil, apperrors.Storage("encode", err)
	}
	q := g.scoped(ctx).Where("id_ = ? AND version_ = ?", id, current)
	res := q.Updates(map[string]any{
		"data":         data,
		"version_":     current + 1,
		"update_time_": next[model.ColumnUpdateTime],
	})
	if res.Error != nil {
		return nil, database.FromDatabase(res.Error, "update")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return next, nil
}

func (g *gormService) UpdateByIDAndVersion(ctx context.Context, id string, version int64, row map[string]any) (map[string]any, error) {
	return g.update(ctx, id, &version, row)
}

func (g *gormService) UpdateWithLockByID(ctx context.Context, id string, row map[string]any) (map[string]any, error) {
	return g.update(ctx, id, nil, row)
}

func (g *gormService) DeleteByIDAndVersion(ctx context.Context, id string, version int64) (int64, error) {
	res := g.scoped(ctx).Where("id_ = ? AND version_ = ?", id, version).Delete(&Record{})
	if res.Error != nil {
		return 0, database.FromDatabase(res.Error, "delete")
	}
	return res.RowsAffected, nil
}

func (g *gormService) FindAndLockByID(ctx context.Context, id string) (map[string]any, error) {
	return g.findByID(ctx, g.scoped(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (g *gormService) findByID(_ context.Context, q *gorm.DB, id string) (map[string]any, error) {
	var rec Record
	if err := q.Where("id_ = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(g.topic.Name, id)
		}
		return nil, database.FromDatabase(err, "find by id")
	}
	row, err := decodeRecord(&rec)
	if err != nil {
		return nil, apperrors.Storage("decode", err)
	}
	return row, nil
}

func (g *gormService) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Service) error) error {
	if InTransaction(ctx) {
		return apperrors.New(apperrors.ErrCodeNestedTransaction, "topic transaction is already open")
	}
	return g.store.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		txService := &gormService{store: g.store, conn: tx, topic: g.topic, tenantID: g.tenantID}
		return fn(withTxMarker(ctx, tx), txService)
	})
}

func (g *gormService) encodeRecord(row map[string]any) (*Record, error) {
	data, err := encodeData(row)
	if err != nil {
		return nil, err
	}
	insertTime, _ := value.ToTime(row[model.ColumnInsertTime])
	updateTime, _ := value.ToTime(row[model.ColumnUpdateTime])
	return &Record{
		ID:         value.ToString(row[model.ColumnID]),
		TopicID:    g.topic.TopicID,
		TenantID:   value.ToString(row[model.ColumnTenantID]),
		Version:    g.EntityHelper().VersionOf(row),
		Data:       data,
		InsertTime: insertTime,
		UpdateTime: updateTime,
	}, nil
}

func encodeData(row map[string]any) (string, error) {
	doc := make(map[string]any, len(row))
	for k, v := range row {
		if !IsReserved(k) {
			doc[k] = v
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRecord(rec *Record) (map[string]any, error) {
	row := map[string]any{}
	if rec.Data != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(rec.Data)))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
	}
	for k, v := range row {
		row[k] = normalizeJSON(v)
	}
	row[model.ColumnID] = rec.ID
	row[model.ColumnVersion] = rec.Version
	if rec.TenantID != "" {
		row[model.ColumnTenantID] = rec.TenantID
	}
	row[model.ColumnInsertTime] = rec.InsertTime
	row[model.ColumnUpdateTime] = rec.UpdateTime
	return row, nil
}

// normalizeJSON turns json.Number into int64 or float64, recursively.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeJSON(item)
		}
		return t
	}
	return v
}
