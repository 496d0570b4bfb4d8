package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	RolePlayer    = "Player"
	RoleTagMaster = "TagMaster"
)

type Player struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	Name          string
	Bio           *string
	Roles         []string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// HasRole сравнивает роли с учетом регистра.
func (p *Player) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p *Player) IsDeleted() bool {
	return p.DeletedAt != nil
}

// PlayerUpdate holds optional profile changes; nil fields are left as they are.
type PlayerUpdate struct {
	Name         *string
	Bio          *string
	PasswordHash *string
}
