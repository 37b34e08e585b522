package httpapi

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/roster/internal/app/domain/player"
	walletdomain "github.com/R3E-Network/roster/internal/app/domain/wallet"
	"github.com/R3E-Network/roster/internal/app/services/players"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() (*template.Template, error) {
	return template.New("pages").Funcs(template.FuncMap{
		"num": func(v float64) string {
			return strconv.FormatFloat(v, 'f', -1, 64)
		},
		"rank": func(v *int) string {
			if v == nil {
				return "-"
			}
			return strconv.Itoa(*v)
		},
		"deref": func(v *string) string {
			if v == nil {
				return ""
			}
			return *v
		},
	}).ParseFS(templateFS, "templates/*.html")
}

// pageData feeds templates/index.html.
type pageData struct {
	Standings []players.Standing
	Draft     players.Draft
	Wallet    walletdomain.State
	Overlay   *overlay
	Error     string
}

// overlay is the edit/delete confirmation dialog.
type overlay struct {
	Action players.Action
	Player player.Player
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	if data.Standings == nil {
		list, err := h.app.Players.List(r.Context())
		if err != nil {
			h.log.WithContext(r.Context()).WithError(err).Error("load roster for page")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		data.Standings = players.Standings(list)
	}
	data.Wallet = h.app.Wallet.State()

	var buf bytes.Buffer
	if err := h.pages.ExecuteTemplate(&buf, "index.html", data); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageData{})
}

func (h *Handler) createFromForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, pageData{Error: "invalid form"})
		return
	}

	var draft players.Draft
	for _, field := range []string{"name", "address", "health", "strength"} {
		if err := draft.Set(field, r.PostForm.Get(field)); err != nil {
			h.render(w, r, http.StatusBadRequest, pageData{Error: err.Error()})
			return
		}
	}
	kept := draft
	if _, err := h.dispatch(r, "form", draft.Submit()); err != nil {
		h.render(w, r, statusFor(err), pageData{Draft: kept, Error: err.Error()})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) confirmPage(w http.ResponseWriter, r *http.Request) {
	action, err := players.ParseAction(r.URL.Query().Get("action"))
	if err == nil && action == players.ActionCreate {
		err = errors.New("create needs no confirmation")
	}
	if err != nil {
		h.render(w, r, http.StatusBadRequest, pageData{Error: err.Error()})
		return
	}
	h.renderOverlay(w, r, http.StatusOK, action, "")
}

func (h *Handler) editFromForm(w http.ResponseWriter, r *http.Request) {
	h.confirmedFromForm(w, r, players.ActionEdit)
}

func (h *Handler) deleteFromForm(w http.ResponseWriter, r *http.Request) {
	h.confirmedFromForm(w, r, players.ActionDelete)
}

// confirmedFromForm performs edit or delete once the overlay has been
// confirmed; otherwise it shows the overlay again.
func (h *Handler) confirmedFromForm(w http.ResponseWriter, r *http.Request, action players.Action) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, pageData{Error: "invalid form"})
		return
	}
	confirmed, _ := strconv.ParseBool(r.PostForm.Get("confirmed"))
	cmd := players.Command{
		Action:    action,
		ID:        mux.Vars(r)["id"],
		Confirmed: confirmed,
	}
	if action == players.ActionEdit {
		cmd.Fields = fieldsFromForm(r.PostForm)
	}

	_, err := h.dispatch(r, "form", cmd)
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, players.ErrConfirmationRequired):
		h.renderOverlay(w, r, http.StatusConflict, action, "Please confirm to continue.")
	default:
		h.render(w, r, statusFor(err), pageData{Error: err.Error()})
	}
}

func (h *Handler) renderOverlay(w http.ResponseWriter, r *http.Request, status int, action players.Action, msg string) {
	p, err := h.app.Players.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.render(w, r, statusFor(err), pageData{Error: err.Error()})
		return
	}
	h.render(w, r, status, pageData{
		Overlay: &overlay{Action: action, Player: p},
		Error:   msg,
	})
}

func (h *Handler) walletConnectForm(w http.ResponseWriter, r *http.Request) {
	if _, err := h.app.Wallet.Connect(r.Context()); err != nil {
		h.render(w, r, statusFor(err), pageData{Error: err.Error()})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) walletDisconnectForm(w http.ResponseWriter, r *http.Request) {
	if _, err := h.app.Wallet.Disconnect(r.Context()); err != nil {
		h.render(w, r, statusFor(err), pageData{Error: err.Error()})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// fieldsFromForm keeps only the fields present in the submitted form, so an
// edit overlay may change a subset. Numbers are coerced like the add form.
func fieldsFromForm(form url.Values) player.Fields {
	var f player.Fields
	if _, ok := form["name"]; ok {
		f.Name = player.String(form.Get("name"))
	}
	if _, ok := form["address"]; ok {
		f.Address = player.String(form.Get("address"))
	}
	if _, ok := form["health"]; ok {
		f.Health = player.Float(players.CoerceNumber(form.Get("health")))
	}
	if _, ok := form["strength"]; ok {
		f.Strength = player.Float(players.CoerceNumber(form.Get("strength")))
	}
	return f
}
