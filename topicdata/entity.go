package topicdata

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/value"
)

var reservedColumns = []string{
	model.ColumnID,
	model.ColumnVersion,
	model.ColumnTenantID,
	model.ColumnInsertTime,
	model.ColumnUpdateTime,
}

// EntityHelper maps between rows and the reserved columns of a topic.
type EntityHelper struct {
	topic *model.Topic
}

// NewEntityHelper creates a helper for the topic.
func NewEntityHelper(topic *model.Topic) EntityHelper {
	return EntityHelper{topic: topic}
}

// Columns returns the factor names followed by the reserved columns.
func (h EntityHelper) Columns() []string {
	cols := make([]string, 0, len(h.topic.Factors)+len(reservedColumns)+1)
	for _, f := range h.topic.Factors {
		cols = append(cols, f.Name)
	}
	cols = append(cols, reservedColumns...)
	if h.topic.Type.IsAggregation() {
		cols = append(cols, model.ColumnAggregateAssist)
	}
	return cols
}

// IDOf returns the internal data id of a row.
func (h EntityHelper) IDOf(row map[string]any) (string, bool) {
	id := value.ToString(row[model.ColumnID])
	return id, id != ""
}

// VersionOf returns the version of a row, zero when unset.
func (h EntityHelper) VersionOf(row map[string]any) int64 {
	n, ok := value.ToNumber(row[model.ColumnVersion])
	if !ok {
		return 0
	}
	return int64(n.Float())
}

// IsReserved reports whether column is maintained by the kernel.
func IsReserved(column string) bool {
	for _, c := range reservedColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Strip returns a copy of row without the reserved columns, keeping the
// aggregate assist so merges can roll back previous contributions.
func (h EntityHelper) Strip(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if !IsReserved(k) {
			out[k] = v
		}
	}
	return out
}

// Project returns a copy of row restricted to the given columns.
func (h EntityHelper) Project(row map[string]any, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		out[c] = columnValue(row, c)
	}
	return out
}

// prepareInsert assigns id, version, tenant and timestamps to a new row.
func prepareInsert(row map[string]any, tenantID string, now time.Time) map[string]any {
	out := value.CopyMap(row)
	if out == nil {
		out = map[string]any{}
	}
	if id := value.ToString(out[model.ColumnID]); id == "" {
		out[model.ColumnID] = uuid.NewString()
	}
	out[model.ColumnVersion] = int64(1)
	if tenantID != "" {
		out[model.ColumnTenantID] = tenantID
	}
	out[model.ColumnInsertTime] = now
	out[model.ColumnUpdateTime] = now
	return out
}

// prepareUpdate carries reserved columns from the stored row onto the
// replacement and bumps the version.
func prepareUpdate(stored, row map[string]any, version int64, now time.Time) map[string]any {
	out := value.CopyMap(row)
	if out == nil {
		out = map[string]any{}
	}
	out[model.ColumnID] = stored[model.ColumnID]
	out[model.ColumnTenantID] = stored[model.ColumnTenantID]
	out[model.ColumnInsertTime] = stored[model.ColumnInsertTime]
	out[model.ColumnVersion] = version + 1
	out[model.ColumnUpdateTime] = now
	return out
}

// distinctRows drops rows whose projected values repeat.
func distinctRows(rows []map[string]any) []map[string]any {
	seen := make(map[string]bool, len(rows))
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func rowKey(row map[string]any) string {
	normalized := make(map[string]string, len(row))
	for k, v := range row {
		normalized[k] = value.ToString(v)
	}
	// json sorts map keys
	b, _ := json.Marshal(normalized)
	return string(b)
}
