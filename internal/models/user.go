package models

import (
	"time"

	"github.com/lib/pq"
)

// User represents a Skry account holder
// @Description User structure
type User struct {
	ID                string         `json:"id" db:"id" example:"8f14e45f-ceea-4e70-bb9c-8d9f6c2a1b3d"` // User ID
	Email             string         `json:"email" db:"email" example:"user@example.com"`               // User email
	FullName          string         `json:"fullName" db:"full_name" example:"Jane Doe"`                // Display name
	ModulePermissions pq.StringArray `json:"modulePermissions" db:"module_permissions"`                 // Modules the user may access ("*" = all)
	ShardBalance      int64          `json:"shardBalance" db:"shard_balance" example:"125"`             // Current shard balance
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`
}

// HasModule reports whether the user may access the given module.
func (u *User) HasModule(moduleID string) bool {
	for _, p := range u.ModulePermissions {
		if p == moduleID || p == "*" {
			return true
		}
	}
	return false
}
