package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drewstaylor/fomo/internal/auth"
	"github.com/drewstaylor/fomo/internal/config"
	"github.com/drewstaylor/fomo/internal/game"
	"github.com/drewstaylor/fomo/internal/leaderboard"
	"github.com/drewstaylor/fomo/internal/ledger"
	"github.com/drewstaylor/fomo/internal/store"
)

// Game is the engine surface the API drives.
type Game interface {
	Instantiate(ctx context.Context, call game.Call, p game.InstantiateParams) (*game.Response, error)
	Execute(ctx context.Context, call game.Call, msg game.ExecuteMsg) (*game.Response, error)
	Migrate(ctx context.Context, call game.Call, version string) (*game.Response, error)
	Game(ctx context.Context) (*game.State, error)
	Pool(ctx context.Context) (game.Coin, error)
	Version(ctx context.Context) (game.ContractInfo, error)
	Denom() string
}

type Bank interface {
	Account(ctx context.Context, address string, historyLimit int) (*ledger.Account, error)
	Mint(ctx context.Context, address string, amount game.Coin) error
}

type Leaderboard interface {
	TopWinners(ctx context.Context, denom string, count int64) ([]leaderboard.Entry, error)
	TopRounds(ctx context.Context, denom string, count int64) ([]leaderboard.Entry, error)
	WinnerRank(ctx context.Context, denom, address string) (*leaderboard.Entry, error)
}

type History interface {
	Winners(ctx context.Context, limit int) ([]store.Winner, error)
	Unlocks(ctx context.Context, limit int) ([]store.Unlock, error)
}

// Snapshot serves cached reads of the game record.
type Snapshot interface {
	Get(ctx context.Context) (*game.State, bool, error)
}

// Deps are the collaborators of the API. Optional ones may be nil.
type Deps struct {
	Game        Game
	Bank        Bank
	Leaderboard Leaderboard
	History     History
	Snapshot    Snapshot
	// Health checks keyed by component name.
	Health map[string]func(ctx context.Context) error
}

type Server struct {
	cfg     *config.Config
	deps    Deps
	hub     *Hub
	logger  *slog.Logger
	router  chi.Router
	metrics *Metrics
	now     func() time.Time
}

func New(cfg *config.Config, deps Deps, hub *Hub, metrics *Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		hub:     hub,
		logger:  logger,
		router:  chi.NewRouter(),
		metrics: metrics,
		now:     time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst), s.logger, "/health", "/metrics"))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.ServeHTTP)
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/instantiate", s.handleInstantiate)
		r.Post("/execute", s.handleExecute)
		r.Post("/migrate", s.handleMigrate)

		r.Get("/game", s.handleGame)
		r.Get("/game/pool", s.handlePool)
		r.Get("/game/version", s.handleVersion)

		r.Get("/leaderboard/winners", s.handleTopWinners)
		r.Get("/leaderboard/rounds", s.handleTopRounds)
		r.Get("/leaderboard/rank/{address}", s.handleWinnerRank)

		r.Get("/history/winners", s.handleWinnerHistory)
		r.Get("/history/unlocks", s.handleUnlockHistory)

		r.Get("/accounts/{address}", s.handleAccount)
		r.Post("/faucet", s.handleFaucet)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

type instantiateRequest struct {
	game.InstantiateParams
	Funds []game.Coin `json:"funds"`
}

type executeRequest struct {
	game.ExecuteMsg
	Funds []game.Coin `json:"funds"`
}

type migrateRequest struct {
	Version string `json:"version"`
}

func (s *Server) handleInstantiate(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	sender, ok := s.caller(w, r, now)
	if !ok {
		return
	}
	var req instantiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, game.ErrInvalidInput)
		return
	}
	call := game.Call{Sender: sender, Funds: req.Funds, Now: unix(now)}
	resp, err := s.deps.Game.Instantiate(r.Context(), call, req.InstantiateParams)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	sender, ok := s.caller(w, r, now)
	if !ok {
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, game.ErrInvalidInput)
		return
	}
	call := game.Call{Sender: sender, Funds: req.Funds, Now: unix(now)}
	resp, err := s.deps.Game.Execute(r.Context(), call, req.ExecuteMsg)
	if err != nil {
		s.metrics.IncrRejected()
		s.writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	sender, ok := s.caller(w, r, now)
	if !ok {
		return
	}
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version == "" {
		s.writeError(w, game.ErrInvalidInput)
		return
	}
	resp, err := s.deps.Game.Migrate(r.Context(), game.Call{Sender: sender, Now: unix(now)}, req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

type gameView struct {
	State *game.State `json:"state"`
	Phase string      `json:"phase"`
	Now   uint64      `json:"now"`
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	now := unix(s.now())
	st, err := s.loadState(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, gameView{State: st, Phase: st.Phase(now).String(), Now: now})
}

func (s *Server) loadState(ctx context.Context) (*game.State, error) {
	if s.deps.Snapshot != nil {
		st, ok, err := s.deps.Snapshot.Get(ctx)
		if err != nil {
			s.logger.Warn("state snapshot read", "err", err)
		} else if ok {
			return st, nil
		}
	}
	return s.deps.Game.Game(ctx)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.deps.Game.Pool(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, pool)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Game.Version(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleTopWinners(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	entries, err := s.deps.Leaderboard.TopWinners(r.Context(), s.deps.Game.Denom(), int64(countParam(r, 50)))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleTopRounds(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	entries, err := s.deps.Leaderboard.TopRounds(r.Context(), s.deps.Game.Denom(), int64(countParam(r, 50)))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleWinnerRank(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	entry, err := s.deps.Leaderboard.WinnerRank(r.Context(), s.deps.Game.Denom(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entry == nil {
		http.Error(w, "not ranked", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleWinnerHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	winners, err := s.deps.History.Winners(r.Context(), countParam(r, 20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, winners)
}

func (s *Server) handleUnlockHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	unlocks, err := s.deps.History.Unlocks(r.Context(), countParam(r, 20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, unlocks)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bank == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	acc, err := s.deps.Bank.Account(r.Context(), chi.URLParam(r, "address"), countParam(r, 20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, acc)
}

type faucetRequest struct {
	Amount game.Coin `json:"amount"`
}

// handleFaucet mints to the authenticated caller only.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bank == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	sender, ok := s.caller(w, r, s.now())
	if !ok {
		return
	}
	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, game.ErrInvalidInput)
		return
	}
	if err := s.deps.Bank.Mint(r.Context(), sender, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "minted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			status[name] = "down"
			status["status"] = "degraded"
		} else {
			status[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("write json", "err", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// caller authenticates the X-Caller token. It writes the error response
// itself and reports whether the handler may continue.
func (s *Server) caller(w http.ResponseWriter, r *http.Request, now time.Time) (string, bool) {
	address, err := auth.ValidateCallerToken(r.Header.Get("X-Caller"), s.cfg.CallerSecret, now)
	if err != nil {
		s.logger.Debug("caller rejected", "err", err, "request_id", middleware.GetReqID(r.Context()))
		writeErrorBody(w, http.StatusUnauthorized, err.Error(), "unauthenticated")
		return "", false
	}
	return address, true
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(kind string) int {
	switch kind {
	case "unauthorized", "identity_required":
		return http.StatusForbidden
	case "paused":
		return http.StatusLocked
	case "game_over", "not_yet_over", "not_stale", "already_instantiated":
		return http.StatusConflict
	case "invalid_input":
		return http.StatusBadRequest
	case "insufficient_funds":
		return http.StatusPaymentRequired
	case "not_instantiated":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := game.Kind(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
		msg = "internal server error"
	}
	writeErrorBody(w, status, msg, kind)
}

func writeErrorBody(w http.ResponseWriter, status int, msg, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

func countParam(r *http.Request, fallback int) int {
	if c := r.URL.Query().Get("count"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n > 0 && n <= 100 {
			return n
		}
	}
	return fallback
}

func unix(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
