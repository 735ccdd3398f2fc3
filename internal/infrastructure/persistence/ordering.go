package persistence

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortColumns whitelists the columns a list endpoint may order by
type sortColumns map[string]bool

var batchSortColumns = sortColumns{
	"created_at":        true,
	"batch_code":        true,
	"received_date":     true,
	"expiry_date":       true,
	"current_quantity":  true,
	"reserved_quantity": true,
	"unit_cost":         true,
	"status":            true,
}

var spoilageSortColumns = sortColumns{
	"created_at":       true,
	"detected_at":      true,
	"batch_code":       true,
	"quantity_spoiled": true,
	"total_loss":       true,
	"status":           true,
	"reason":           true,
}

// column returns the whitelisted column for field, or "" when it is not sortable
func (c sortColumns) column(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	if c[field] {
		return field
	}
	return ""
}

// descending reads a sort direction; anything but "asc" sorts newest first
func descending(dir string) bool {
	return !strings.EqualFold(strings.TrimSpace(dir), "asc")
}

// orderBy applies column/direction followed by id, so pages are stable
func orderBy(query *gorm.DB, column string, desc bool) *gorm.DB {
	return query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
}
