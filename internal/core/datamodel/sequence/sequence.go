package sequence

import "time"

// DocumentCounter holds the last allocated sequence value per document kind
// and two-digit year. Numbering is global across tenants; allocation locks
// the row for update so concurrent submitters serialize.
type DocumentCounter struct {
	Kind      string    `json:"kind" gorm:"primaryKey"`
	Year      int       `json:"year" gorm:"primaryKey"`
	LastValue int64     `json:"last_value" gorm:"column:last_value;not null;default:0"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (DocumentCounter) TableName() string {
	return "document_counters"
}
