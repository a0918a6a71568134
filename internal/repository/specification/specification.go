package specification

import "gorm.io/gorm"

// Specification is one composable query condition. Repositories apply them
// in order.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
