package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/openfutarchy/futarchy-data/internal/model"
)

// Store is the query surface the handler serves. *Service satisfies it.
type Store interface {
	TWAPHistory(ctx context.Context, proposal string, from, to time.Time) ([]model.TWAPSnapshot, error)
	TradeHistory(ctx context.Context, proposal string, from, to time.Time, limit int) ([]model.TradeRecord, error)
	TradeVolume(ctx context.Context, proposal string, from, to time.Time) (VolumeSummary, error)
	ChartData(ctx context.Context, proposal string, market int, width time.Duration, from, to time.Time) ([]Bar, error)
}

// Handler exposes the history store over HTTP.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a history Handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Register mounts the history routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /history/{pda}/twap", h.handleTWAP)
	mux.HandleFunc("GET /history/{pda}/trades", h.handleTrades)
	mux.HandleFunc("GET /history/{pda}/volume", h.handleVolume)
	mux.HandleFunc("GET /history/{pda}/chart", h.handleChart)
}

type errorResponse struct {
	Error       string   `json:"error"`
	ValidValues []string `json:"validValues,omitempty"`
}

type twapJSON struct {
	Market     int    `json:"market"`
	TWAP       string `json:"twap"`
	RecordedAt string `json:"recordedAt"`
}

type tradeJSON struct {
	Signature  string `json:"signature"`
	Market     int    `json:"market"`
	Pool       string `json:"pool"`
	Trader     string `json:"trader"`
	Direction  string `json:"direction"`
	Price      string `json:"price"`
	AmountIn   string `json:"amountIn"`
	AmountOut  string `json:"amountOut"`
	Fee        string `json:"fee"`
	ExecutedAt string `json:"executedAt"`
}

func (h *Handler) handleTWAP(w http.ResponseWriter, r *http.Request) {
	pda, ok := h.proposalPDA(w, r)
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	snaps, err := h.store.TWAPHistory(r.Context(), pda, from, to)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	out := make([]twapJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, twapJSON{
			Market:     s.Market,
			TWAP:       s.TWAP,
			RecordedAt: s.RecordedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposal": pda, "twap": out})
}

func (h *Handler) handleTrades(w http.ResponseWriter, r *http.Request) {
	pda, ok := h.proposalPDA(w, r)
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	trades, err := h.store.TradeHistory(r.Context(), pda, from, to, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
			Signature:  t.Signature,
			Market:     t.Market,
			Pool:       t.Pool,
			Trader:     t.Trader,
			Direction:  t.Direction,
			Price:      t.Price,
			AmountIn:   strconv.FormatUint(t.AmountIn, 10),
			AmountOut:  strconv.FormatUint(t.AmountOut, 10),
			Fee:        strconv.FormatUint(t.Fee, 10),
			ExecutedAt: t.ExecutedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposal": pda, "trades": out})
}

func (h *Handler) handleVolume(w http.ResponseWriter, r *http.Request) {
	pda, ok := h.proposalPDA(w, r)
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	summary, err := h.store.TradeVolume(r.Context(), pda, from, to)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	pda, ok := h.proposalPDA(w, r)
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	interval := r.URL.Query().Get("interval")
	width, found := Intervals[interval]
	if !found {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:       "unknown interval",
			ValidValues: intervalNames(),
		})
		return
	}

	market := 0
	if raw := r.URL.Query().Get("market"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "market must be a non-negative integer"})
			return
		}
		market = n
	}

	bars, err := h.store.ChartData(r.Context(), pda, market, width, from, to)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal": pda,
		"market":   market,
		"interval": interval,
		"bars":     bars,
	})
}

// minPDALength is the shortest base58 encoding of a 32-byte key.
const minPDALength = 32

// proposalPDA validates the path's proposal identity.
func (h *Handler) proposalPDA(w http.ResponseWriter, r *http.Request) (string, bool) {
	pda := r.PathValue("pda")
	if len(pda) < minPDALength {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid proposal address"})
		return "", false
	}
	return pda, true
}

// timeRange parses the from/to query parameters as RFC 3339, defaulting
// to the last 24 hours.
func (h *Handler) timeRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	now := time.Now()
	from, to = now.Add(-24*time.Hour), now

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "from must be an RFC 3339 timestamp"})
			return from, to, false
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "to must be an RFC 3339 timestamp"})
			return from, to, false
		}
		to = t
	}
	if !to.After(from) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "to must be after from"})
		return from, to, false
	}
	return from, to, true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("history query failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func intervalNames() []string {
	names := make([]string, 0, len(Intervals))
	for name := range Intervals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return Intervals[names[i]] < Intervals[names[j]] })
	return names
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
