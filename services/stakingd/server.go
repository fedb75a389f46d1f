package stakingd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/gateway/middleware"
	"github.com/tuturu-tech/nft-staking/native/nftstake"
)

const headerRequestID = "X-Request-ID"

var (
	errInvalidRequest = errors.New("invalid request")
	errMissingCaller  = errors.New("missing authenticated caller")
)

// ServerOptions wires the collaborators behind the HTTP API.
type ServerOptions struct {
	Ledger      *Ledger
	History     *History
	Hub         *Hub
	Idempotency *IdempotencyStore
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimit
	Logger      *slog.Logger
	LogRequests bool
}

// Server exposes the staking ledger over HTTP.
type Server struct {
	ledger  *Ledger
	history *History
	hub     *Hub
	idem    *IdempotencyStore
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	logger  *slog.Logger
}

// NewServer validates opts and returns a server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("stakingd: ledger required")
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:  opts.Ledger,
		history: opts.History,
		hub:     opts.Hub,
		idem:    opts.Idempotency,
		auth:    middleware.NewAuthenticator(opts.Auth, logger),
		limiter: middleware.NewRateLimiter(opts.RateLimit, logger),
		obs:     middleware.NewObservability(logger, opts.LogRequests),
		logger:  logger,
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(v1 chi.Router) {
		// Untraced: a span would stay open for the life of the connection.
		v1.Get("/events/ws", s.hub.ServeHTTP)
		v1.With(s.public("ledger")...).Get("/ledger", s.handleLedger)
		v1.With(s.public("account")...).Get("/accounts/{address}", s.handleAccount)
		v1.With(s.public("history")...).Get("/accounts/{address}/history", s.handleHistory)

		v1.With(s.authed("stake")...).Post("/stake", s.handleStake)
		v1.With(s.authed("withdraw")...).Post("/withdraw", s.handleWithdraw)
		v1.With(s.authed("withdraw_all")...).Post("/withdraw-all", s.handleWithdrawAll)
		v1.With(s.authed("claim")...).Post("/claim", s.handleClaim)

		v1.Route("/admin", func(admin chi.Router) {
			admin.With(s.authed("admin_paused")...).Post("/paused", s.handleSetPaused)
			admin.With(s.authed("admin_pause")...).Post("/pause", s.handlePause(true))
			admin.With(s.authed("admin_unpause")...).Post("/unpause", s.handlePause(false))
			admin.With(s.authed("admin_recover")...).Post("/recover", s.handleRecover)
		})
	})
	return r
}

func (s *Server) public(route string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		s.obs.Middleware(route),
		s.limiter.Middleware(route),
	}
}

func (s *Server) authed(route string) []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		s.obs.Middleware(route),
		s.auth.Middleware,
		s.limiter.Middleware(route),
	}
	if s.idem != nil {
		chain = append(chain, s.idem.Middleware)
	}
	return chain
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

type unitsRequest struct {
	UnitIDs []uint64 `json:"unitIds"`
}

type pausedRequest struct {
	Paused *bool `json:"paused"`
}

type recoverRequest struct {
	Token  string  `json:"token"`
	Amount *string `json:"amount,omitempty"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req unitsRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.ledger.Stake(r.Context(), caller, req.UnitIDs); err != nil {
		s.fail(w, err)
		return
	}
	s.writePosition(w, caller)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req unitsRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.ledger.Withdraw(r.Context(), caller, req.UnitIDs); err != nil {
		s.fail(w, err)
		return
	}
	s.writePosition(w, caller)
}

func (s *Server) handleWithdrawAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.ledger.WithdrawAll(r.Context(), caller); err != nil {
		s.fail(w, err)
		return
	}
	s.writePosition(w, caller)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	paid, err := s.ledger.Claim(r.Context(), caller)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": caller.Hex(),
		"paid":    paid.String(),
	})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req pausedRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Paused == nil {
		s.fail(w, fmt.Errorf("%w: paused is required", errInvalidRequest))
		return
	}
	s.setPaused(w, r, *req.Paused)
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.setPaused(w, r, paused)
	}
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.ledger.SetPaused(r.Context(), caller, paused); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req recoverRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if !common.IsHexAddress(strings.TrimSpace(req.Token)) {
		s.fail(w, fmt.Errorf("%w: token must be a hex address", errInvalidRequest))
		return
	}
	token := common.HexToAddress(strings.TrimSpace(req.Token))
	var amount *big.Int
	if req.Amount != nil {
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(*req.Amount), 10)
		if !ok || parsed.Sign() < 0 {
			s.fail(w, fmt.Errorf("%w: amount must be a non-negative base-10 integer", errInvalidRequest))
			return
		}
		amount = parsed
	}
	moved, err := s.ledger.Recover(r.Context(), caller, token, amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":  token.Hex(),
		"to":     caller.Hex(),
		"amount": moved.String(),
	})
}

type ledgerResponse struct {
	StakingToken   string `json:"stakingToken"`
	RewardToken    string `json:"rewardToken"`
	Owner          string `json:"owner"`
	Custodian      string `json:"custodian"`
	TotalSupply    uint64 `json:"totalSupply"`
	RewardRate     uint64 `json:"rewardRate"`
	Paused         bool   `json:"paused"`
	LastUpdateTime uint64 `json:"lastUpdateTime"`
	RewardPerToken string `json:"rewardPerToken"`
	Outstanding    string `json:"outstandingRewards"`
	Paid           string `json:"rewardsPaid"`
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.ledger.Summary()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponseFrom(summary))
}

func ledgerResponseFrom(s nftstake.Summary) ledgerResponse {
	return ledgerResponse{
		StakingToken:   s.StakingToken.Hex(),
		RewardToken:    s.RewardToken.Hex(),
		Owner:          s.Owner.Hex(),
		Custodian:      s.Custodian.Hex(),
		TotalSupply:    s.TotalSupply,
		RewardRate:     s.RewardRate,
		Paused:         s.Paused,
		LastUpdateTime: s.LastUpdateTime,
		RewardPerToken: bigString(s.RewardPerToken),
		Outstanding:    bigString(s.Outstanding),
		Paid:           bigString(s.Paid),
	}
}

type positionResponse struct {
	Account string   `json:"account"`
	Balance uint64   `json:"balance"`
	Units   []uint64 `json:"unitIds"`
	Earned  string   `json:"earned"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	s.writePosition(w, addr)
}

func (s *Server) writePosition(w http.ResponseWriter, addr common.Address) {
	pos, err := s.ledger.Position(addr)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Account: pos.Account.Hex(),
		Balance: pos.Balance,
		Units:   pos.Units,
		Earned:  bigString(pos.Earned),
	})
}

type historyEntry struct {
	Sequence   uint64            `json:"sequence"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"createdAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "event history is not configured", nil)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.fail(w, fmt.Errorf("%w: limit must be a positive integer", errInvalidRequest))
			return
		}
		limit = parsed
	}
	records, err := s.history.List(r.Context(), addr, limit)
	if err != nil {
		s.logger.Error("history: list", "account", addr.Hex(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load history", nil)
		return
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			Sequence:   rec.Sequence,
			ID:         rec.EventID,
			Type:       rec.Type,
			Attributes: rec.Decoded(),
			CreatedAt:  rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": addr.Hex(), "events": entries})
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", errMissingCaller.Error(), nil)
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "address"))
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid_address", "address must be a hex account", nil)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errInvalidRequest, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: empty body", errInvalidRequest)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON payload", errInvalidRequest)
	}
	return nil
}

// fail maps ledger errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("stakingd: request failed", "code", code, "error", err)
	}
	writeError(w, status, code, err.Error(), nil)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, stakeerrors.ErrNotOwner),
		errors.Is(err, stakeerrors.ErrNotCallersToken),
		errors.Is(err, stakeerrors.ErrNotOwnerOrNotApproved):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, stakeerrors.ErrStakingPaused):
		return http.StatusConflict, "paused"
	case errors.Is(err, stakeerrors.ErrReentrantCall):
		return http.StatusConflict, "busy"
	case errors.Is(err, stakeerrors.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, stakeerrors.ErrRecoveryExceedsSurplus):
		return http.StatusUnprocessableEntity, "exceeds_surplus"
	case errors.Is(err, stakeerrors.ErrEmptyBatch),
		errors.Is(err, stakeerrors.ErrDuplicateUnit),
		errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message, Details: details}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
