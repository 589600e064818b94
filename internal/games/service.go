package games

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bananalabs-oss/lobby/internal/database"
	"github.com/bananalabs-oss/lobby/internal/models"
	"github.com/uptrace/bun"
)

const maxPlayers = models.MaxPlayers

// Service runs the lobby state machine against the database. It holds no
// state of its own; every mutating call is a single transaction.
type Service struct {
	db   *bun.DB
	pick func(n int) int
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, pick: rand.IntN}
}

// LeaveResult describes what happened to a game after a member left.
type LeaveResult struct {
	GameID      int64
	Closed      bool
	HostChanged bool
	NewHostID   string
}

func (s *Service) FindOpenGame(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.db.NewSelect().
		Model((*models.Game)(nil)).
		Column("id").
		Where("status = ?", models.StatusWaiting).
		OrderExpr("when_created ASC, id ASC").
		Limit(1).
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find open game: %w", err)
	}
	return id, true, nil
}

func (s *Service) CreateGame(ctx context.Context, hostID string) (int64, error) {
	game := &models.Game{
		HostID:      hostID,
		Status:      models.StatusWaiting,
		WhenCreated: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(game).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("create game: %w", err)
	}
	return game.ID, nil
}

// SignUp adds userID to a waiting game and returns the new member count.
func (s *Service) SignUp(ctx context.Context, gameID int64, userID string) (int, error) {
	var count int
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		game, err := lockGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusWaiting {
			return ErrGameNotFound
		}

		signed, err := tx.NewSelect().
			Model((*models.SignedUser)(nil)).
			Join("JOIN game AS g ON g.id = su.game_id").
			Where("su.game_id = ?", gameID).
			Where("g.status = ?", models.StatusWaiting).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count signed users: %w", err)
		}
		if signed >= maxPlayers {
			return &GameFullError{GameID: gameID, Count: signed}
		}

		member := &models.SignedUser{
			GameID:     gameID,
			UserID:     userID,
			WhenSigned: time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadySigned
			}
			return fmt.Errorf("insert signed user: %w", err)
		}

		count = signed + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Leave removes userID from its waiting or active game. It serves both a
// player leaving and an eviction.
func (s *Service) Leave(ctx context.Context, userID string) (LeaveResult, error) {
	var result LeaveResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		gameID, err := liveGameOf(ctx, tx, userID)
		if err != nil {
			return err
		}

		game, err := lockGame(ctx, tx, gameID)
		if err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*models.SignedUser)(nil)).
			Where("game_id = ? AND user_id = ?", gameID, userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete signed user: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrGameNotFound
		}

		result.GameID = gameID

		remaining, err := membersOf(ctx, tx, gameID)
		if err != nil {
			return err
		}

		if len(remaining) == 0 {
			result.Closed = true
			return setStatus(ctx, tx, gameID, models.StatusInactive)
		}

		for _, id := range remaining {
			if id == game.HostID {
				return nil
			}
		}

		newHost := remaining[s.pick(len(remaining))]
		_, err = tx.NewUpdate().
			Model((*models.Game)(nil)).
			Set("host_id = ?", newHost).
			Where("id = ?", gameID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("transfer host: %w", err)
		}

		result.HostChanged = true
		result.NewHostID = newHost
		return nil
	})
	if err != nil {
		return LeaveResult{}, err
	}
	return result, nil
}

// Start moves the waiting game userID is signed for to active. Any member
// may start the game, not only its host.
func (s *Service) Start(ctx context.Context, userID, joinCode string) (int64, error) {
	code, err := NormalizeJoinCode(joinCode)
	if err != nil {
		return 0, err
	}

	var gameID int64
	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		id, err := liveGameOf(ctx, tx, userID)
		if err != nil {
			return err
		}

		game, err := lockGame(ctx, tx, id)
		if err != nil {
			return err
		}
		if game.Status != models.StatusWaiting {
			return ErrGameNotFound
		}

		_, err = tx.NewUpdate().
			Model((*models.Game)(nil)).
			Set("status = ?", models.StatusActive).
			Set("join_code = ?", code).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("start game: %w", err)
		}

		gameID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return gameID, nil
}

// SetJoinCode replaces the join code of the waiting or active game userID
// is signed for.
func (s *Service) SetJoinCode(ctx context.Context, userID, joinCode string) (int64, error) {
	code, err := NormalizeJoinCode(joinCode)
	if err != nil {
		return 0, err
	}

	var gameID int64
	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		id, err := liveGameOf(ctx, tx, userID)
		if err != nil {
			return err
		}

		if _, err := lockGame(ctx, tx, id); err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*models.Game)(nil)).
			Set("join_code = ?", code).
			Where("id = ?", id).
			Where("status != ?", models.StatusInactive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("set join code: %w", err)
		}

		gameID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return gameID, nil
}

// DeleteGame closes a waiting or active game and releases its members.
func (s *Service) DeleteGame(ctx context.Context, gameID int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		game, err := lockGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if game.Status == models.StatusInactive {
			return ErrGameNotFound
		}

		_, err = tx.NewDelete().
			Model((*models.SignedUser)(nil)).
			Where("game_id = ?", gameID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete signed users: %w", err)
		}

		return setStatus(ctx, tx, gameID, models.StatusInactive)
	})
}

// ListByStatus returns waiting or active games with their member counts.
// Games without members are left out.
func (s *Service) ListByStatus(ctx context.Context, status string) ([]models.GameSummary, error) {
	if status != models.StatusWaiting && status != models.StatusActive {
		return nil, ErrInvalidStatus
	}

	summaries := make([]models.GameSummary, 0)
	err := s.db.NewSelect().
		TableExpr("game AS g").
		ColumnExpr("g.id, g.host_id, g.join_code").
		ColumnExpr("COUNT(su.user_id) AS signed_count").
		Join("JOIN signed_user AS su ON su.game_id = g.id").
		Where("g.status = ?", status).
		GroupExpr("g.id, g.host_id, g.join_code").
		OrderExpr("g.id ASC").
		Scan(ctx, &summaries)
	if err != nil {
		return nil, fmt.Errorf("list %s games: %w", status, err)
	}
	return summaries, nil
}

// MembersOf returns the users signed for a game in sign-up order,
// whatever the game's status.
func (s *Service) MembersOf(ctx context.Context, gameID int64) ([]string, error) {
	return membersOf(ctx, s.db, gameID)
}

func membersOf(ctx context.Context, db bun.IDB, gameID int64) ([]string, error) {
	ids := make([]string, 0)
	err := db.NewSelect().
		Model((*models.SignedUser)(nil)).
		Column("user_id").
		Where("game_id = ?", gameID).
		OrderExpr("when_signed ASC, user_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list signed users: %w", err)
	}
	return ids, nil
}

func lockGame(ctx context.Context, tx bun.Tx, gameID int64) (*models.Game, error) {
	game := new(models.Game)
	q := tx.NewSelect().Model(game).Where("g.id = ?", gameID)
	err := database.LockForUpdate(tx, q).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %d: %w", gameID, err)
	}
	return game, nil
}

// liveGameOf finds the waiting or active game userID is signed for.
func liveGameOf(ctx context.Context, tx bun.Tx, userID string) (int64, error) {
	var gameID int64
	err := tx.NewSelect().
		Model((*models.SignedUser)(nil)).
		ColumnExpr("su.game_id").
		Join("JOIN game AS g ON g.id = su.game_id").
		Where("su.user_id = ?", userID).
		Where("g.status IN (?)", bun.In([]string{models.StatusWaiting, models.StatusActive})).
		Limit(1).
		Scan(ctx, &gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrGameNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find game for user: %w", err)
	}
	return gameID, nil
}

func setStatus(ctx context.Context, tx bun.Tx, gameID int64, status string) error {
	_, err := tx.NewUpdate().
		Model((*models.Game)(nil)).
		Set("status = ?", status).
		Where("id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set game %d %s: %w", gameID, status, err)
	}
	return nil
}
