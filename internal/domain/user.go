package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleLearner Role = "learner"
	RoleAdmin   Role = "admin"
)

// User is the read-only view of an account owned by the identity service.
// This module never writes users; it only needs a display identity for
// certificate snapshots.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Role      Role               `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// DisplayIdentity is what a certificate shows for its holder.
type DisplayIdentity struct {
	Name          string `json:"name"`
	FallbackEmail string `json:"fallbackEmail"`
}

// DisplayIdentity returns the name/email pair used for certificate snapshots.
func (u *User) DisplayIdentity() DisplayIdentity {
	return DisplayIdentity{
		Name:          strings.TrimSpace(u.Name),
		FallbackEmail: strings.TrimSpace(u.Email),
	}
}

// Label picks the name, falling back to the email. Empty means no usable identity.
func (d DisplayIdentity) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.FallbackEmail
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
