package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Authentication and role checks happen at the HTTP boundary;
// the fraud engine only ever sees user ids.
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// User holds the identity fields the alert reporting queries join against.
// Full user management lives outside this service.
type User struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
