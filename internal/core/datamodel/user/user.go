package user

import "time"

type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	IsActive     bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (User) TableName() string {
	return "users"
}
