package games

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bananalabs-oss/lobby/internal/metrics"
	"github.com/bananalabs-oss/lobby/internal/models"
	"github.com/gin-gonic/gin"
)

const testAccountHeader = "X-Test-Account"

func newTestEngine(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(t)
	h := NewHandler(svc, metrics.NewRecorder())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("account_id", c.GetHeader(testAccountHeader))
		c.Next()
	})
	r.GET("/games", h.ListGames)
	r.GET("/games/:gameId/players", h.GetPlayers)
	r.POST("/games/sign", h.SignUp)
	r.POST("/games/leave", h.Leave)
	r.POST("/games/start", h.Start)
	r.POST("/games/code", h.SetJoinCode)
	r.GET("/internal/games/open", h.GetOpenGame)
	r.POST("/internal/games/evict", h.Evict)
	r.DELETE("/internal/games/:gameId", h.DeleteGame)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path, account string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(testAccountHeader, account)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func TestSignUpHandlerHostsWhenNoGameIsOpen(t *testing.T) {
	r, svc := newTestEngine(t)

	status, body := doJSON(t, r, http.MethodPost, "/games/sign", "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["hosted"] != true {
		t.Fatalf("expected alice to host, got %v", body)
	}
	if body["signed_count"] != float64(1) {
		t.Fatalf("signed_count = %v, want 1", body["signed_count"])
	}
	gameID := int64(body["game_id"].(float64))

	status, body = doJSON(t, r, http.MethodPost, "/games/sign", "bob", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["hosted"] != false || int64(body["game_id"].(float64)) != gameID {
		t.Fatalf("expected bob to join game %d, got %v", gameID, body)
	}

	if game := loadGame(t, svc, gameID); game.HostID != "alice" {
		t.Fatalf("host = %q, want alice", game.HostID)
	}
}

func TestSignUpHandlerErrors(t *testing.T) {
	r, svc := newTestEngine(t)
	ctx := context.Background()

	gameID := mustCreate(t, svc, "p0")
	for i := 0; i < models.MaxPlayers; i++ {
		mustSign(t, svc, gameID, fmt.Sprintf("p%d", i))
	}

	status, body := doJSON(t, r, http.MethodPost, "/games/sign", "p0", gin.H{"game_id": gameID})
	if status != http.StatusConflict || body["error"] != "game_full" {
		t.Fatalf("expected game_full before duplicate check, got %d %v", status, body)
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/sign", "late", gin.H{"game_id": gameID})
	if status != http.StatusConflict || body["error"] != "game_full" {
		t.Fatalf("expected game_full, got %d %v", status, body)
	}
	if body["signed_count"] != float64(models.MaxPlayers) {
		t.Fatalf("signed_count = %v, want %d", body["signed_count"], models.MaxPlayers)
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/sign", "late", gin.H{"game_id": 424242})
	if status != http.StatusNotFound || body["error"] != "game_not_found" {
		t.Fatalf("expected game_not_found, got %d %v", status, body)
	}

	other := mustCreate(t, svc, "x")
	if _, err := svc.SignUp(ctx, other, "x"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	status, body = doJSON(t, r, http.MethodPost, "/games/sign", "p3", gin.H{"game_id": other})
	if status != http.StatusConflict || body["error"] != "already_signed" {
		t.Fatalf("expected already_signed, got %d %v", status, body)
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/sign", "p3", gin.H{"game_id": "nope"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d %v", status, body)
	}
}

func TestSignUpHandlerClosesHostedGameOnFailure(t *testing.T) {
	r, svc := newTestEngine(t)
	ctx := context.Background()

	// alice is signed to a game that has already started, so no game is
	// open and her hosted game cannot take her.
	gameID := mustCreate(t, svc, "alice")
	mustSign(t, svc, gameID, "alice")
	if _, err := svc.Start(ctx, "alice", "ABCDEF"); err != nil {
		t.Fatalf("start: %v", err)
	}

	status, body := doJSON(t, r, http.MethodPost, "/games/sign", "alice", nil)
	if status != http.StatusConflict || body["error"] != "already_signed" {
		t.Fatalf("expected already_signed, got %d %v", status, body)
	}

	if _, ok, err := svc.FindOpenGame(ctx); err != nil || ok {
		t.Fatalf("expected no open game left behind, ok=%v err=%v", ok, err)
	}
}

func TestLeaveAndEvictHandlers(t *testing.T) {
	r, svc := newTestEngine(t)
	svc.pick = func(int) int { return 0 }

	gameID := mustCreate(t, svc, "host")
	mustSign(t, svc, gameID, "host", "guest")

	status, body := doJSON(t, r, http.MethodPost, "/games/leave", "host", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["new_host_id"] != "guest" || body["closed"] != false {
		t.Fatalf("unexpected leave body %v", body)
	}

	status, body = doJSON(t, r, http.MethodPost, "/internal/games/evict", "", gin.H{"user_id": "guest"})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["closed"] != true {
		t.Fatalf("expected game to close, got %v", body)
	}
	if _, ok := body["new_host_id"]; ok {
		t.Fatalf("unexpected new host in %v", body)
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/leave", "host", nil)
	if status != http.StatusNotFound || body["error"] != "game_not_found" {
		t.Fatalf("expected game_not_found, got %d %v", status, body)
	}

	status, _ = doJSON(t, r, http.MethodPost, "/internal/games/evict", "", gin.H{})
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing user_id, got %d", status)
	}
}

func TestStartAndSetCodeHandlers(t *testing.T) {
	r, svc := newTestEngine(t)

	gameID := mustCreate(t, svc, "host")
	mustSign(t, svc, gameID, "host", "guest")

	status, body := doJSON(t, r, http.MethodPost, "/games/start", "guest", gin.H{"join_code": "abc12f"})
	if status != http.StatusBadRequest || body["error"] != "invalid_join_code" {
		t.Fatalf("expected invalid_join_code, got %d %v", status, body)
	}
	if game := loadGame(t, svc, gameID); game.Status != models.StatusWaiting {
		t.Fatalf("invalid code changed status to %q", game.Status)
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/start", "guest", gin.H{"join_code": "abcdef"})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["join_code"] != "ABCDEF" {
		t.Fatalf("join_code = %v, want ABCDEF", body["join_code"])
	}
	players, ok := body["players"].([]any)
	if !ok || len(players) != 2 {
		t.Fatalf("players = %v, want 2", body["players"])
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/start", "host", gin.H{"join_code": "ABCDEF"})
	if status != http.StatusNotFound {
		t.Fatalf("expected not found for started game, got %d %v", status, body)
	}

	status, body = doJSON(t, r, http.MethodPost, "/games/code", "host", gin.H{"join_code": "ZYXWVU"})
	if status != http.StatusOK || body["join_code"] != "ZYXWVU" {
		t.Fatalf("unexpected set code response %d %v", status, body)
	}

	status, _ = doJSON(t, r, http.MethodPost, "/games/code", "host", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request without join_code, got %d", status)
	}
}

func TestListAndPlayersHandlers(t *testing.T) {
	r, svc := newTestEngine(t)

	gameID := mustCreate(t, svc, "host")
	mustSign(t, svc, gameID, "host", "guest")

	status, body := doJSON(t, r, http.MethodGet, "/games", "host", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	games, ok := body["games"].([]any)
	if !ok || len(games) != 1 {
		t.Fatalf("games = %v, want one", body["games"])
	}
	summary := games[0].(map[string]any)
	if summary["signed_count"] != float64(2) || summary["host_id"] != "host" {
		t.Fatalf("unexpected summary %v", summary)
	}

	status, body = doJSON(t, r, http.MethodGet, "/games?status=active", "host", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if games, _ := body["games"].([]any); len(games) != 0 {
		t.Fatalf("expected no active games, got %v", games)
	}

	status, body = doJSON(t, r, http.MethodGet, "/games?status=inactive", "host", nil)
	if status != http.StatusBadRequest || body["error"] != "invalid_status" {
		t.Fatalf("expected invalid_status, got %d %v", status, body)
	}

	status, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/games/%d/players", gameID), "host", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if players, _ := body["players"].([]any); len(players) != 2 {
		t.Fatalf("players = %v, want 2", body["players"])
	}

	status, _ = doJSON(t, r, http.MethodGet, "/games/abc/players", "host", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request for non-numeric id, got %d", status)
	}
}

func TestInternalOpenAndDeleteHandlers(t *testing.T) {
	r, svc := newTestEngine(t)

	status, body := doJSON(t, r, http.MethodGet, "/internal/games/open", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected not found with no games, got %d %v", status, body)
	}

	gameID := mustCreate(t, svc, "host")
	mustSign(t, svc, gameID, "host")

	status, body = doJSON(t, r, http.MethodGet, "/internal/games/open", "", nil)
	if status != http.StatusOK || int64(body["game_id"].(float64)) != gameID {
		t.Fatalf("unexpected open game response %d %v", status, body)
	}

	path := fmt.Sprintf("/internal/games/%d", gameID)
	status, body = doJSON(t, r, http.MethodDelete, path, "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}

	status, body = doJSON(t, r, http.MethodDelete, path, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected not found on second delete, got %d %v", status, body)
	}
}
