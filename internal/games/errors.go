package games

import (
	"errors"
	"fmt"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameFull        = errors.New("game is full")
	ErrAlreadySigned   = errors.New("user already signed for a game")
	ErrInvalidJoinCode = errors.New("invalid join code")
	ErrInvalidStatus   = errors.New("invalid game status")
)

// GameFullError carries the member count observed when a sign-up was
// rejected. It matches ErrGameFull under errors.Is.
type GameFullError struct {
	GameID int64
	Count  int
}

func (e *GameFullError) Error() string {
	return fmt.Sprintf("game %d is full (%d/%d)", e.GameID, e.Count, maxPlayers)
}

func (e *GameFullError) Is(target error) bool {
	return target == ErrGameFull
}

// AsGameFull unwraps err into a GameFullError.
func AsGameFull(err error) (*GameFullError, bool) {
	var fullErr *GameFullError
	if errors.As(err, &fullErr) {
		return fullErr, true
	}
	return nil, false
}
