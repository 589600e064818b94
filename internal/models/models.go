package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusInactive = "inactive"

	MaxPlayers = 10
)

type Game struct {
	bun.BaseModel `bun:"table:game,alias:g"`

	ID          int64     `bun:"id,pk,autoincrement"                   json:"id"`
	HostID      string    `bun:"host_id,notnull"                       json:"host_id"`
	JoinCode    string    `bun:"join_code,nullzero"                    json:"join_code,omitempty"`
	Status      string    `bun:"status,notnull,default:'waiting'"      json:"status"`
	WhenCreated time.Time `bun:"when_created,nullzero,notnull"         json:"when_created"`
}

type SignedUser struct {
	bun.BaseModel `bun:"table:signed_user,alias:su"`

	GameID     int64     `bun:"game_id,pk"                     json:"game_id"`
	UserID     string    `bun:"user_id,pk"                     json:"user_id"`
	WhenSigned time.Time `bun:"when_signed,nullzero,notnull"   json:"when_signed"`
}

// GameSummary is one row of a status listing.
type GameSummary struct {
	ID          int64  `bun:"id"           json:"id"`
	HostID      string `bun:"host_id"      json:"host_id"`
	JoinCode    string `bun:"join_code"    json:"join_code,omitempty"`
	SignedCount int    `bun:"signed_count" json:"signed_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
