package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate applies SELECT ... FOR UPDATE row locking on dialects that
// support it. SQLite (used by the repository test suites) serializes writers
// on its own and rejects the clause, so it is skipped there.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
