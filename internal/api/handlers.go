package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/agent"
	"github.com/is42day/binance-trading-agent-sub000/internal/portfolio"
	"github.com/is42day/binance-trading-agent-sub000/internal/store/redis"
	"github.com/is42day/binance-trading-agent-sub000/internal/store/sqlite"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

const maxBodyBytes = 1 << 20

type server struct {
	Deps
}

// ── Strategies ────────────────────────────────────────────────

type strategyInfo struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Parameters  strategy.Params `json:"parameters"`
	MinimumData int             `json:"minimum_data"`
	Current     bool            `json:"current"`
	Schema      strategy.Schema `json:"schema,omitempty"`
	Fallbacks   []string        `json:"fallbacks,omitempty"`
}

func (s *server) info(name string, st strategy.Strategy, withSchema bool) strategyInfo {
	in := strategyInfo{
		Name:        name,
		Type:        st.Type(),
		Description: st.Description(),
		Parameters:  st.Params(),
		MinimumData: st.RequiresMinimumData(),
		Current:     name == s.Agent.CurrentStrategy(),
	}
	if withSchema {
		in.Schema = st.Parameters()
		if c, ok := st.(*strategy.CombinedStrategy); ok {
			in.Fallbacks = c.Fallbacks()
		}
	}
	return in
}

func (s *server) listStrategies(w http.ResponseWriter, r *http.Request) {
	m := s.Agent.Manager()
	names := m.Names()
	out := make([]strategyInfo, 0, len(names))
	for _, name := range names {
		st, ok := m.Get(name)
		if !ok {
			continue // removed concurrently
		}
		out = append(out, s.info(name, st, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": out,
		"current":    s.Agent.CurrentStrategy(),
		"types":      strategy.Types(),
	})
}

func (s *server) getStrategy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	st, ok := s.Agent.Manager().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown strategy %q", name))
		return
	}
	writeJSON(w, http.StatusOK, s.info(name, st, true))
}

type createRequest struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Parameters strategy.Params `json:"parameters"`
}

func (s *server) createStrategy(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}

	m := s.Agent.Manager()
	if err := m.Create(req.Type, req.Name, req.Parameters); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, strategy.ErrUnknownType) || errors.Is(err, strategy.ErrInvalidParameter) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	st, _ := m.Get(req.Name)
	log.Printf("[api] strategy %s (%s) created", req.Name, req.Type)
	s.registryChanged()
	writeJSON(w, http.StatusCreated, s.info(req.Name, st, true))
}

func (s *server) deleteStrategy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == s.Agent.CurrentStrategy() {
		writeError(w, http.StatusConflict, "cannot remove the current strategy")
		return
	}
	if !s.Agent.Manager().Remove(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown strategy %q", name))
		return
	}
	log.Printf("[api] strategy %s removed", name)
	s.registryChanged()
	writeJSON(w, http.StatusOK, map[string]string{"removed": name})
}

func (s *server) currentStrategy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"strategy": s.Agent.CurrentStrategy()})
}

func (s *server) setCurrentStrategy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Agent.SetStrategy(req.Strategy); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": req.Strategy})
}

func (s *server) registryChanged() {
	if s.OnRegistryChange == nil {
		return
	}
	data, err := s.Agent.Manager().Export()
	if err != nil {
		log.Printf("[api] export after registry change: %v", err)
		return
	}
	s.OnRegistryChange(data)
}

// ── Signals ───────────────────────────────────────────────────

func (s *server) signal(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	out := s.Agent.GenerateSignal(r.Context(), symbol, r.URL.Query().Get("strategy"))
	writeJSON(w, http.StatusOK, out)
}

func (s *server) latestSignal(w http.ResponseWriter, r *http.Request) {
	if s.Signals == nil {
		writeError(w, http.StatusServiceUnavailable, "redis is not configured")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))
	kind := queryKind(r)

	data, err := s.Signals.Latest(r.Context(), kind, symbol)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no %s published for %s", kind, symbol))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *server) recentSignals(w http.ResponseWriter, r *http.Request) {
	if s.Signals == nil {
		writeError(w, http.StatusServiceUnavailable, "redis is not configured")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))
	count := queryInt(r, "count", 20)

	payloads, err := s.Signals.Recent(r.Context(), queryKind(r), symbol, int64(count))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	items := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		items = append(items, json.RawMessage(p))
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) compare(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	cmp, err := s.Agent.Compare(r.Context(), symbol)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, agent.ErrNotEnoughCandles) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type indicatorRequest struct {
	Indicator string           `json:"indicator"`
	Period    int              `json:"period"` // rsi value only; the signal uses 14
	Rows      []map[string]any `json:"rows"`
}

// indicators computes a single indicator over caller-supplied rows.
func (s *server) indicators(w http.ResponseWriter, r *http.Request) {
	var req indicatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp := map[string]any{"indicator": strings.ToLower(req.Indicator)}
	switch strings.ToLower(req.Indicator) {
	case "rsi":
		v, err := agent.ComputeRSI(req.Rows, req.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp["value"] = v
	case "macd":
		m, err := agent.ComputeMACD(req.Rows)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp["value"] = m
	}

	sig, err := agent.ComputeSignal(req.Rows, req.Indicator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp["signal"] = sig
	writeJSON(w, http.StatusOK, resp)
}

// ── Performance ───────────────────────────────────────────────

func (s *server) performance(w http.ResponseWriter, r *http.Request) {
	m := s.Agent.Manager()
	if name := r.URL.Query().Get("strategy"); name != "" {
		sum, ok := m.Summary(name)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown strategy %q", name))
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}
	writeJSON(w, http.StatusOK, m.Summaries())
}

// history serves the in-memory log, or the SQLite archive with ?source=db.
func (s *server) history(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q := r.URL.Query()
	limit := queryInt(r, "limit", 100)

	if q.Get("source") == "db" {
		if s.History == nil {
			writeError(w, http.StatusServiceUnavailable, "history store is not configured")
			return
		}
		hq := sqlite.HistoryQuery{
			Strategy: name,
			Symbol:   strings.ToUpper(q.Get("symbol")),
			Limit:    limit,
		}
		if since := q.Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be RFC3339")
				return
			}
			hq.Since = t
		}
		recs, err := s.History.ReadHistory(hq)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, nonNil(recs))
		return
	}

	recs, ok := s.Agent.Manager().History(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown strategy %q", name))
		return
	}
	if sym := strings.ToUpper(q.Get("symbol")); sym != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.Symbol == sym {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	writeJSON(w, http.StatusOK, nonNil(recs))
}

func (s *server) export(w http.ResponseWriter, r *http.Request) {
	m := s.Agent.Manager()
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, m.Snapshot())
		return
	}
	data, err := m.Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// importStrategies accepts an export document (YAML, or JSON which YAML
// also parses).
func (s *server) importStrategies(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.Agent.Manager().Import(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rep.Imported > 0 {
		s.registryChanged()
	}
	writeJSON(w, http.StatusOK, rep)
}

// ── Trading ───────────────────────────────────────────────────

func (s *server) trades(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "trade journal is not configured")
		return
	}
	trades, err := s.Journal.GetTrades(strings.ToUpper(r.URL.Query().Get("symbol")), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

type positionView struct {
	portfolio.Position
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Notional      float64 `json:"notional"`
}

func (s *server) portfolio(w http.ResponseWriter, r *http.Request) {
	if s.Portfolio == nil {
		writeError(w, http.StatusServiceUnavailable, "portfolio is not configured")
		return
	}
	positions := s.Portfolio.GetPositions()
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionView{Position: p, UnrealizedPnL: p.UnrealizedPnL(), Notional: p.Notional()})
	}
	resp := map[string]any{
		"positions": views,
		"summary":   s.Portfolio.GetSummary(),
	}
	if s.Risk != nil {
		resp["risk"] = s.Risk.GetStatus()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Helpers ───────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func queryKind(r *http.Request) string {
	switch k := r.URL.Query().Get("kind"); k {
	case redis.KindComparison, redis.KindTrade:
		return k
	}
	return redis.KindSignal
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
