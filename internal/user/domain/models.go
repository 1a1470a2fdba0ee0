package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

type User struct {
	ID        snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	Email     string       `gorm:"column:email" json:"email"`
	FirstName string       `gorm:"column:first_name" json:"firstName"`
	LastName  string       `gorm:"column:last_name" json:"lastName"`
	Phone     string       `gorm:"column:phone" json:"phone,omitempty"`
	Role      string       `gorm:"column:role" json:"role"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"createdAt"`
}

// DisplayName is "First Last", falling back to the email address.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}
