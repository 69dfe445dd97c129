package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"bilancio/internal/api"
	"bilancio/internal/core"
	"bilancio/internal/filter"
	applog "bilancio/internal/log"
	"bilancio/internal/notify"
	"bilancio/internal/poller"
)

// Exporter appends the currently loaded rows of a view to an external sheet.
type Exporter interface {
	Export(ctx context.Context, view string, items []core.Transaction) (string, error)
}

// viewState is the JSON shape of one list view.
type viewState struct {
	View    string             `json:"view"`
	Filter  filter.Spec        `json:"filter"`
	Items   []core.Transaction `json:"items"`
	HasMore bool               `json:"hasMore"`
}

func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*filter.Controller, bool) {
	view := r.PathValue("view")
	ctrl, ok := s.views[view]
	if !ok {
		NotFoundError("Vista non trovata").Write(w)
		return nil, false
	}
	return ctrl, true
}

func (s *Server) state(view string, ctrl *filter.Controller) viewState {
	return viewState{
		View:    view,
		Filter:  ctrl.Spec(),
		Items:   ctrl.Items(),
		HasMore: ctrl.HasMore(),
	}
}

// handleViewState returns the current filter spec and loaded rows. A view
// with no rows yet is fetched on first read.
func (s *Server) handleViewState(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	if len(ctrl.Items()) == 0 {
		if err := ctrl.Refresh(r.Context()); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "View refresh failed",
				applog.FieldView, r.PathValue("view"), applog.FieldError, err)
			ErrorResponse(http.StatusBadGateway, "Impossibile caricare i movimenti").Write(w)
			return
		}
	}

	NewResponse().Data(s.state(r.PathValue("view"), ctrl)).Write(w)
}

// filterRequest carries partial filter mutations. Absent fields leave the
// persisted spec untouched.
type filterRequest struct {
	Scope       *string    `json:"scope"`
	Type        *string    `json:"type"`
	Range       *string    `json:"range"`
	CustomStart *time.Time `json:"customStart"`
	CustomEnd   *time.Time `json:"customEnd"`
	SortColumn  *string    `json:"sortColumn"`
	Page        *int       `json:"page"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError("Richiesta non valida").Write(w)
		return
	}

	ctrl.Update(r.Context(), func(spec filter.Spec) filter.Spec {
		if req.Scope != nil {
			spec = spec.SetScope(filter.Scope(*req.Scope))
		}
		if req.Type != nil {
			spec = spec.SetType(filter.TypeFilter(*req.Type))
		}
		if req.Range != nil {
			spec = spec.SetRange(filter.DateRange(*req.Range))
		}
		if req.CustomStart != nil || req.CustomEnd != nil {
			var start, end time.Time
			if req.CustomStart != nil {
				start = *req.CustomStart
			}
			if req.CustomEnd != nil {
				end = *req.CustomEnd
			}
			spec = spec.SetCustomBounds(start, end)
		}
		if req.SortColumn != nil {
			spec = spec.ToggleSort(*req.SortColumn)
		}
		if req.Page != nil {
			spec = spec.SetPage(*req.Page)
		}
		return spec
	})

	if err := ctrl.Refresh(r.Context()); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "View refresh failed",
			applog.FieldView, r.PathValue("view"), applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "Impossibile caricare i movimenti").Write(w)
		return
	}

	NewResponse().Data(s.state(r.PathValue("view"), ctrl)).Write(w)
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	if err := ctrl.LoadMore(r.Context()); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Load more failed",
			applog.FieldView, r.PathValue("view"), applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "Impossibile caricare altri movimenti").Write(w)
		return
	}

	NewResponse().Data(s.state(r.PathValue("view"), ctrl)).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	if s.exporter == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Esportazione non configurata").Write(w)
		return
	}

	view := r.PathValue("view")
	ref, err := s.exporter.Export(r.Context(), view, ctrl.Items())
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Sheets export failed",
			applog.FieldView, view, applog.FieldError, err)
		InternalServerError("Esportazione non riuscita").Write(w)
		return
	}

	NewResponse().
		Data(map[string]string{"ref": ref}).
		Notice(notify.Success("Movimenti esportati")).
		Write(w)
}

type refreshRequest struct {
	RequestedBy string `json:"requestedBy"`
}

// handleRefresh starts a background limit refresh job. Rejections are
// reported synchronously; the terminal outcome arrives via the notifier.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	budgetID := r.PathValue("id")
	if budgetID == "" {
		BadRequestError("Richiesta non valida").Write(w)
		return
	}

	var req refreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestError("Richiesta non valida").Write(w)
			return
		}
	}

	// Jobs run on the server's context: the poll loop must survive this
	// request and die on shutdown.
	err := s.poller.Start(s.jobCtx, budgetID, s.pollOpts)
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrInsufficientBalance):
		ErrorResponse(http.StatusPaymentRequired,
			"Saldo insufficiente per richiedere l'aggiornamento dei limiti").Write(w)
		return
	case errors.Is(err, poller.ErrRefreshInFlight):
		ErrorResponse(http.StatusConflict,
			"Un aggiornamento dei limiti è già in corso").Write(w)
		return
	default:
		if apiErr, ok := api.AsError(err); ok && apiErr.Kind == api.KindAuth {
			ErrorResponse(http.StatusUnauthorized, "Sessione scaduta, accedi di nuovo").Write(w)
			return
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Refresh start failed",
			applog.FieldBudgetID, budgetID, applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "Impossibile avviare l'aggiornamento dei limiti").Write(w)
		return
	}

	if s.bus != nil {
		if pubErr := s.bus.PublishRefreshRequested(r.Context(), budgetID, req.RequestedBy); pubErr != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to publish refresh event",
				applog.FieldBudgetID, budgetID, applog.FieldError, pubErr)
		}
	}

	NewResponse().
		Status(http.StatusAccepted).
		Data(map[string]string{"budgetId": budgetID, "status": "refreshing"}).
		Write(w)
}
