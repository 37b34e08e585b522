package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/roster/internal/app/domain/player"
	"github.com/R3E-Network/roster/internal/app/services/players"
	"github.com/R3E-Network/roster/internal/httputil"
)

var timeNow = time.Now

func (h *Handler) listPlayers(w http.ResponseWriter, r *http.Request) {
	var (
		list []player.Player
		err  error
	)
	switch order := strings.ToLower(r.URL.Query().Get("order")); order {
	case "", "stored":
		list, err = h.app.Players.List(r.Context())
	case "rank", "strength":
		list, err = h.app.Players.Ranked(r.Context())
	default:
		httputil.BadRequest(w, "order must be stored or rank")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Players.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) createPlayer(w http.ResponseWriter, r *http.Request) {
	var fields player.Fields
	if !httputil.DecodeJSON(w, r, &fields) {
		return
	}
	res, err := h.dispatch(r, "api", players.Command{Action: players.ActionCreate, Fields: fields})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res.Player)
}

func (h *Handler) updatePlayer(w http.ResponseWriter, r *http.Request) {
	confirmed, ok := confirmParam(w, r)
	if !ok {
		return
	}
	var fields player.Fields
	if !httputil.DecodeJSON(w, r, &fields) {
		return
	}
	res, err := h.dispatch(r, "api", players.Command{
		Action:    players.ActionEdit,
		ID:        mux.Vars(r)["id"],
		Fields:    fields,
		Confirmed: confirmed,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Player)
}

func (h *Handler) deletePlayer(w http.ResponseWriter, r *http.Request) {
	confirmed, ok := confirmParam(w, r)
	if !ok {
		return
	}
	res, err := h.dispatch(r, "api", players.Command{
		Action:    players.ActionDelete,
		ID:        mux.Vars(r)["id"],
		Confirmed: confirmed,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Player)
}

// commandRequest is the wire form of players.Command; the action is parsed
// separately so unknown values become a 400.
type commandRequest struct {
	Action    string        `json:"action"`
	ID        string        `json:"id"`
	Fields    player.Fields `json:"fields"`
	Confirmed bool          `json:"confirmed"`
}

func (h *Handler) dispatchCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	action, err := players.ParseAction(req.Action)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if action != players.ActionCreate && strings.TrimSpace(req.ID) == "" {
		httputil.BadRequest(w, "id required for "+string(action))
		return
	}

	res, err := h.dispatch(r, "api", players.Command{
		Action:    action,
		ID:        req.ID,
		Fields:    req.Fields,
		Confirmed: req.Confirmed,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if action == players.ActionCreate {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, res)
}

func (h *Handler) recentCommands(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *Handler) walletState(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.app.Wallet.State())
}

func (h *Handler) walletConnect(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Wallet.Connect(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) walletDisconnect(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Wallet.Disconnect(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// confirmParam reads ?confirm=; absent means false.
func confirmParam(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("confirm")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		httputil.BadRequest(w, "confirm must be a boolean")
		return false, false
	}
	return v, true
}
