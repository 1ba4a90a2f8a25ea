package topicdata

import (
	"context"

	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
)

// Service reads and writes the rows of one topic for one tenant.
// Rows are maps keyed by factor name plus the reserved columns.
type Service interface {
	// Topic returns the schema the service is bound to.
	Topic() *model.Topic
	// EntityHelper exposes reserved column handling for the topic.
	EntityHelper() EntityHelper

	Find(ctx context.Context, criteria Criteria) ([]map[string]any, error)
	// FindStraightValues projects matching rows onto columns.
	FindStraightValues(ctx context.Context, columns []string, criteria Criteria) ([]map[string]any, error)
	// FindDistinctValues projects matching rows onto columns, dropping duplicates.
	FindDistinctValues(ctx context.Context, columns []string, criteria Criteria) ([]map[string]any, error)
	Exists(ctx context.Context, criteria Criteria) (bool, error)
	Count(ctx context.Context, criteria Criteria) (int64, error)
	Page(ctx context.Context, criteria Criteria, pageable Pageable) (*DataPage, error)

	// Insert stores a new row and returns it with reserved columns filled.
	Insert(ctx context.Context, row map[string]any) (map[string]any, error)
	// UpdateByIDAndVersion replaces the row whose id and version match,
	// bumping the version. It returns the row as stored, or nil when no
	// row matched.
	UpdateByIDAndVersion(ctx context.Context, id string, version int64, row map[string]any) (map[string]any, error)
	// UpdateWithLockByID replaces the row without a version check. It is
	// meant to follow FindAndLockByID inside a transaction.
	UpdateWithLockByID(ctx context.Context, id string, row map[string]any) (map[string]any, error)
	// DeleteByIDAndVersion deletes the row whose id and version match.
	DeleteByIDAndVersion(ctx context.Context, id string, version int64) (int64, error)
	// FindAndLockByID reads a row and holds it until the transaction ends.
	FindAndLockByID(ctx context.Context, id string) (map[string]any, error)

	// WithTransaction runs fn inside a transaction, committing when fn
	// returns nil. Nested transactions are refused.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Service) error) error
}

// Provider resolves the service of a topic for a principal.
type Provider interface {
	ServiceFor(ctx context.Context, topic *model.Topic, p principal.Principal) (Service, error)
}

// Pageable selects one page of rows. PageNumber is one-based.
type Pageable struct {
	PageNumber int
	PageSize   int
}

// DataPage is one page of rows.
type DataPage struct {
	Data       []map[string]any
	PageNumber int
	PageSize   int
	ItemCount  int64
	PageCount  int
}

func paginate(rows []map[string]any, pageable Pageable) *DataPage {
	size := pageable.PageSize
	if size <= 0 {
		size = 20
	}
	number := pageable.PageNumber
	if number <= 0 {
		number = 1
	}
	total := len(rows)
	pageCount := (total + size - 1) / size
	start := (number - 1) * size
	var data []map[string]any
	if start < total {
		end := start + size
		if end > total {
			end = total
		}
		data = rows[start:end]
	}
	return &DataPage{
		Data:       data,
		PageNumber: number,
		PageSize:   size,
		ItemCount:  int64(total),
		PageCount:  pageCount,
	}
}

type txKey struct{}

// InTransaction reports whether ctx belongs to an open topic transaction.
func InTransaction(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

func withTxMarker(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}
