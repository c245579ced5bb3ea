package dois

import (
	"slices"

	"gorm.io/gorm"
)

const defaultCollectorLimit = 30

// PaginationMode selects how a collector turns its offset into SQL.
type PaginationMode int

const (
	// PaginationStandard skips Offset rows.
	PaginationStandard PaginationMode = iota
	// PaginationLegacy skips Limit rows whenever a non-zero offset is set.
	// It reproduces the paging of earlier releases.
	PaginationLegacy
)

// QueryHook adjusts a collector query before pagination is applied. Hooks are
// registered on the DAO.
type QueryHook func(query *gorm.DB, collector *Collector) *gorm.DB

// Collector describes a filtered, paginated DOI query. Setters return the
// collector and the last call wins.
type Collector struct {
	contextIDs     []int64
	statuses       []Status
	contextsScoped bool
	statusesScoped bool
	limit      int
	offset     int
	mode       PaginationMode
}

// NewCollector returns a collector with the default page.
func NewCollector(mode PaginationMode) *Collector {
	return &Collector{limit: defaultCollectorLimit, mode: mode}
}

// FilterByContextIDs restricts results to the given contexts. Once set, an
// empty id list matches no rows.
func (c *Collector) FilterByContextIDs(ids ...int64) *Collector {
	c.contextIDs = slices.Clone(ids)
	c.contextsScoped = true
	return c
}

// FilterByStatus restricts results to the given statuses. Once set, an empty
// status list matches no rows.
func (c *Collector) FilterByStatus(statuses ...Status) *Collector {
	c.statuses = slices.Clone(statuses)
	c.statusesScoped = true
	return c
}

// Limit sets the page size. Values below one disable the limit.
func (c *Collector) Limit(n int) *Collector {
	c.limit = n
	return c
}

// Offset sets the page start.
func (c *Collector) Offset(n int) *Collector {
	c.offset = n
	return c
}

// ContextIDs returns the context filter.
func (c *Collector) ContextIDs() []int64 {
	return c.contextIDs
}

// Statuses returns the status filter.
func (c *Collector) Statuses() []Status {
	return c.statuses
}

// PageLimit returns the configured limit.
func (c *Collector) PageLimit() int {
	return c.limit
}

// PageOffset returns the number of rows skipped by the query.
func (c *Collector) PageOffset() int {
	if c.offset <= 0 {
		return 0
	}
	if c.mode == PaginationLegacy {
		return c.limit
	}
	return c.offset
}

// filter applies the filters and hooks without pagination.
func (c *Collector) filter(query *gorm.DB, hooks []QueryHook) *gorm.DB {
	if c.contextsScoped {
		query = whereIn(query, "dois.context_id", c.contextIDs)
	}
	if c.statusesScoped {
		query = whereIn(query, "dois.status", c.statuses)
	}
	for _, hook := range hooks {
		query = hook(query, c)
	}
	return query
}

func whereIn[T any](query *gorm.DB, column string, values []T) *gorm.DB {
	if len(values) == 0 {
		return query.Where("1 = 0")
	}
	return query.Where(column+" IN ?", values)
}

// paginate applies ordering, limit and offset.
func (c *Collector) paginate(query *gorm.DB) *gorm.DB {
	query = query.Order("dois.doi_id ASC")
	if c.limit > 0 {
		query = query.Limit(c.limit)
	}
	if offset := c.PageOffset(); offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
