package ledger

import "time"

// StoreVersion is the optimistic concurrency stamp of one historical store
// file. Every successful append bumps Version by exactly one.
type StoreVersion struct {
	ID        uint   `gorm:"primaryKey"`
	Path      string `gorm:"not null;uniqueIndex"`
	Version   int64  `gorm:"not null;default:0"`
	RowCount  int64
	UpdatedAt time.Time
}

// AppendedBatch records a batch that was appended to a store.
type AppendedBatch struct {
	ID           uint   `gorm:"primaryKey"`
	StorePath    string `gorm:"not null;index"`
	BatchID      string `gorm:"not null;index"`
	RowCount     int64
	Duplicates   int64
	StoreVersion int64
	AppendedAt   time.Time
}
