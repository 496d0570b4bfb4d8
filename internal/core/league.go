package core

import (
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type League struct {
	ID          uuid.UUID
	Name        string
	Description *string
	Rules       *string
	Visibility  Visibility
	OrganizerID uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

type Season struct {
	ID                    uuid.UUID
	LeagueID              uuid.UUID
	Name                  string
	StartDate             time.Time
	EndDate               *time.Time
	RegistrationOpenDate  *time.Time
	RegistrationCloseDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Round struct {
	ID         uuid.UUID
	SeasonID   uuid.UUID
	CreatorID  uuid.UUID
	Date       time.Time
	CourseName string
	Location   *string
	StartTime  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

type LeagueAssistant struct {
	ID           uuid.UUID
	PlayerID     uuid.UUID
	LeagueID     uuid.UUID
	AssignedByID uuid.UUID
	CreatedAt    time.Time
}
