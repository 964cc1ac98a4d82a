// Package parcels_api exposes the parcel actions over HTTP: add, list, get,
// delete, track, events and refresh. Each action maps 1:1 onto a service
// operation; errors from the taxonomy become status codes here.
package parcels_api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"parcelbox/internal/apperr"
	"parcelbox/internal/models"
	"parcelbox/internal/services/parcels"

	"github.com/go-chi/chi/v5"
)

type ParcelsAPI struct {
	svc *parcels.Service
}

func New(svc *parcels.Service) *ParcelsAPI {
	return &ParcelsAPI{svc: svc}
}

func (a *ParcelsAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/parcels", a.addParcel)
	r.Get("/parcels", a.getParcels)
	r.Get("/parcels/{id}", a.getParcel)
	r.Delete("/parcels/{id}", a.deleteParcel)
	r.Get("/parcels/{id}/track", a.trackParcel)
	r.Get("/parcels/{id}/events", a.listParcelEvents)
	r.Post("/parcels/{id}/refresh", a.refreshParcel)
	return r
}

type parcelDTO struct {
	ID         uint64 `json:"id"`
	TrackingID string `json:"trackingId"`
	Carrier    string `json:"carrier"`
	CreatedAt  string `json:"createdAt"`
}

type trackingEventDTO struct {
	Status      string `json:"status"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type trackingInfoDTO struct {
	Events []trackingEventDTO `json:"events"`
}

type addParcelRequest struct {
	TrackingID string `json:"trackingId"`
	Carrier    string `json:"carrier"`
}

func (a *ParcelsAPI) addParcel(w http.ResponseWriter, r *http.Request) {
	var req addParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	p, err := a.svc.AddParcel(r.Context(), req.TrackingID, req.Carrier)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParcelDTO(p))
}

func (a *ParcelsAPI) getParcels(w http.ResponseWriter, r *http.Request) {
	ps, err := a.svc.GetParcels(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]parcelDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toParcelDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ParcelsAPI) getParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}
	p, err := a.svc.GetParcel(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParcelDTO(p))
}

func (a *ParcelsAPI) deleteParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteParcel(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ParcelsAPI) trackParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}
	info, err := a.svc.TrackParcel(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	out := trackingInfoDTO{Events: make([]trackingEventDTO, 0, len(info.Events))}
	for _, e := range info.Events {
		out.Events = append(out.Events, toEventDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ParcelsAPI) listParcelEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evs, err := a.svc.ListParcelEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}

	out := make([]trackingEventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, trackingEventDTO{
			Status:      string(e.Status),
			Location:    e.Location,
			Description: e.Description,
			Timestamp:   e.EventTime.UTC().Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ParcelsAPI) refreshParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}
	if err := a.svc.RefreshParcel(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toParcelDTO(p *models.Parcel) parcelDTO {
	return parcelDTO{
		ID:         p.ID,
		TrackingID: p.TrackingID,
		Carrier:    p.Carrier.Code(),
		CreatedAt:  p.CreatedAt.UTC().Format(timeLayout),
	}
}

func toEventDTO(e models.TrackingEvent) trackingEventDTO {
	return trackingEventDTO{
		Status:      string(e.Status),
		Location:    e.Location,
		Description: e.Description,
		Timestamp:   e.EventTime.UTC().Format(timeLayout),
	}
}

func idFromURL(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid parcel id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResponse{Error: msg})
}

// writeAppError maps the error taxonomy onto HTTP statuses. Every operation
// error surfaces as a user-visible message; nothing is swallowed here.
func writeAppError(w http.ResponseWriter, err error) {
	var uc *apperr.UnsupportedCarrierError
	var ve *apperr.VendorError

	switch {
	case errors.Is(err, apperr.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &uc):
		writeError(w, http.StatusUnprocessableEntity, uc.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadGateway, ve.Error())
	case errors.Is(err, apperr.ErrNetwork), errors.Is(err, apperr.ErrBadPayload):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, apperr.ErrMissingAPIKey):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Error("internal error", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
