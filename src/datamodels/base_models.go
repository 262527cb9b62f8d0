package datamodels

import (
	"time"

	"github.com/google/uuid"
)

type BaseModel struct {
	Id        int64 `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BaseModelUUID struct {
	ID        uuid.UUID `gorm:"primarykey;default:gen_random_uuid();type:uuid"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Day truncates a timestamp to the UTC calendar date it falls on.
// All as-of dates in the store are normalized this way.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
