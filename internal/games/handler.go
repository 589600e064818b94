package games

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bananalabs-oss/lobby/internal/metrics"
	"github.com/bananalabs-oss/lobby/internal/models"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc     *Service
	metrics *metrics.Recorder
}

func NewHandler(svc *Service, rec *metrics.Recorder) *Handler {
	return &Handler{svc: svc, metrics: rec}
}

func getAccountID(c *gin.Context) string {
	return c.GetString("account_id")
}

func parseGameID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("gameId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid game ID",
		})
		return 0, false
	}
	return id, true
}

// --- Player-facing endpoints ---

// SignUp signs the caller for the requested game. Without a game id the
// oldest waiting game is used, and a new one hosted by the caller is
// created when none is open.
func (h *Handler) SignUp(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := getAccountID(c)
	start := time.Now()

	var req struct {
		GameID *int64 `json:"game_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "game_id must be a number",
		})
		return
	}

	hosted := false
	var gameID int64
	if req.GameID != nil {
		gameID = *req.GameID
	} else {
		id, ok, err := h.svc.FindOpenGame(ctx)
		if err != nil {
			h.fail(c, "sign_up", start, err)
			return
		}
		if !ok {
			id, err = h.svc.CreateGame(ctx, accountID)
			if err != nil {
				h.fail(c, "sign_up", start, err)
				return
			}
			hosted = true
		}
		gameID = id
	}

	count, err := h.svc.SignUp(ctx, gameID, accountID)
	if err != nil {
		if hosted {
			if cleanupErr := h.svc.DeleteGame(ctx, gameID); cleanupErr != nil {
				log.Printf("failed to close unused game %d: %v", gameID, cleanupErr)
			}
		}
		h.fail(c, "sign_up", start, err)
		return
	}

	h.metrics.RecordOperation("sign_up", metrics.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"game_id":      gameID,
		"signed_count": count,
		"max_players":  models.MaxPlayers,
		"hosted":       hosted,
	})
}

func (h *Handler) Leave(c *gin.Context) {
	h.leave(c, "leave", getAccountID(c))
}

func (h *Handler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := getAccountID(c)
	start := time.Now()

	code, ok := h.bindJoinCode(c, "start", start)
	if !ok {
		return
	}

	gameID, err := h.svc.Start(ctx, accountID, code)
	if err != nil {
		h.fail(c, "start", start, err)
		return
	}

	h.respondWithPlayers(c, "start", start, gameID, code)
}

func (h *Handler) SetJoinCode(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := getAccountID(c)
	start := time.Now()

	code, ok := h.bindJoinCode(c, "set_join_code", start)
	if !ok {
		return
	}

	gameID, err := h.svc.SetJoinCode(ctx, accountID, code)
	if err != nil {
		h.fail(c, "set_join_code", start, err)
		return
	}

	h.respondWithPlayers(c, "set_join_code", start, gameID, code)
}

func (h *Handler) ListGames(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	status := c.DefaultQuery("status", models.StatusWaiting)
	summaries, err := h.svc.ListByStatus(ctx, status)
	if err != nil {
		h.fail(c, "list", start, err)
		return
	}

	h.metrics.RecordOperation("list", metrics.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"games":       summaries,
		"max_players": models.MaxPlayers,
	})
}

func (h *Handler) GetPlayers(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	players, err := h.svc.MembersOf(ctx, gameID)
	if err != nil {
		h.fail(c, "members", start, err)
		return
	}

	h.metrics.RecordOperation("members", metrics.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{"game_id": gameID, "players": players})
}

// --- Internal endpoints (service-to-service) ---

func (h *Handler) Evict(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "user_id is required",
		})
		return
	}

	h.leave(c, "evict", req.UserID)
}

func (h *Handler) DeleteGame(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteGame(ctx, gameID); err != nil {
		h.fail(c, "delete", start, err)
		return
	}

	h.metrics.RecordOperation("delete", metrics.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{"message": "Game closed", "game_id": gameID})
}

func (h *Handler) GetOpenGame(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	gameID, ok, err := h.svc.FindOpenGame(ctx)
	if err != nil {
		h.fail(c, "find_open", start, err)
		return
	}
	if !ok {
		h.fail(c, "find_open", start, ErrGameNotFound)
		return
	}

	h.metrics.RecordOperation("find_open", metrics.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{"game_id": gameID})
}

// --- Helpers ---

func (h *Handler) leave(c *gin.Context, op, userID string) {
	ctx := c.Request.Context()
	start := time.Now()

	res, err := h.svc.Leave(ctx, userID)
	if err != nil {
		h.fail(c, op, start, err)
		return
	}

	h.metrics.RecordOperation(op, metrics.OutcomeOK, time.Since(start))
	body := gin.H{
		"game_id": res.GameID,
		"user_id": userID,
		"closed":  res.Closed,
	}
	if res.HostChanged {
		body["new_host_id"] = res.NewHostID
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) bindJoinCode(c *gin.Context, op string, start time.Time) (string, bool) {
	var req struct {
		JoinCode string `json:"join_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordOperation(op, metrics.OutcomeInvalid, time.Since(start))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "join_code is required",
		})
		return "", false
	}

	code, err := NormalizeJoinCode(req.JoinCode)
	if err != nil {
		h.fail(c, op, start, err)
		return "", false
	}
	return code, true
}

func (h *Handler) respondWithPlayers(c *gin.Context, op string, start time.Time, gameID int64, code string) {
	players, err := h.svc.MembersOf(c.Request.Context(), gameID)
	if err != nil {
		h.fail(c, op, start, err)
		return
	}

	h.metrics.RecordOperation(op, metrics.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"game_id":   gameID,
		"join_code": code,
		"players":   players,
	})
}

// fail writes the error response for err and records the outcome.
func (h *Handler) fail(c *gin.Context, op string, start time.Time, err error) {
	status, body, outcome := describeError(op, err)
	if status == http.StatusInternalServerError {
		log.Printf("%s failed: %v", op, err)
	}
	h.metrics.RecordOperation(op, outcome, time.Since(start))
	c.JSON(status, body)
}

func describeError(op string, err error) (int, any, string) {
	if fullErr, ok := AsGameFull(err); ok {
		return http.StatusConflict, gin.H{
			"error":        "game_full",
			"message":      "Game is full",
			"game_id":      fullErr.GameID,
			"signed_count": fullErr.Count,
		}, metrics.OutcomeFull
	}

	switch {
	case errors.Is(err, ErrGameNotFound):
		return http.StatusNotFound, models.ErrorResponse{
			Error:   "game_not_found",
			Message: "No waiting or active game matches",
		}, metrics.OutcomeNotFound
	case errors.Is(err, ErrAlreadySigned):
		return http.StatusConflict, models.ErrorResponse{
			Error:   "already_signed",
			Message: "You have already signed for a game",
		}, metrics.OutcomeConflict
	case errors.Is(err, ErrInvalidJoinCode):
		return http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_join_code",
			Message: "Join code must be exactly 6 letters",
		}, metrics.OutcomeInvalid
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_status",
			Message: "status must be waiting or active",
		}, metrics.OutcomeInvalid
	default:
		return http.StatusInternalServerError, models.ErrorResponse{
			Error:   op + "_failed",
			Message: "Something went wrong",
		}, metrics.OutcomeError
	}
}
