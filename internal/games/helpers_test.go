package games

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bananalabs-oss/lobby/internal/database"
	"github.com/bananalabs-oss/lobby/internal/models"
	"github.com/uptrace/bun"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := database.Connect("sqlite://" + filepath.Join(t.TempDir(), "lobby.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(openTestDB(t))
}

func loadGame(t *testing.T, svc *Service, id int64) models.Game {
	t.Helper()

	var game models.Game
	err := svc.db.NewSelect().Model(&game).Where("g.id = ?", id).Scan(context.Background())
	if err != nil {
		t.Fatalf("load game %d: %v", id, err)
	}
	return game
}

func mustCreate(t *testing.T, svc *Service, host string) int64 {
	t.Helper()

	id, err := svc.CreateGame(context.Background(), host)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return id
}

func mustSign(t *testing.T, svc *Service, gameID int64, users ...string) {
	t.Helper()

	for _, user := range users {
		if _, err := svc.SignUp(context.Background(), gameID, user); err != nil {
			t.Fatalf("sign %s for game %d: %v", user, gameID, err)
		}
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
