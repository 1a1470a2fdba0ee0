package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Directory resolves users owned by the account service.
type Directory interface {
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*User, error)
}

var (
	ErrInvalidID = errors.New("invalid_user_id")
	ErrNotFound  = errors.New("user_not_found")
)
