// Package api serves job status and asset queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"imaigine-lab/internal/assets"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/storage"
	"imaigine-lab/internal/sui"
)

// JobSnapshots returns the live state of followed jobs.
type JobSnapshots interface {
	Snapshot(id string) (domain.Job, bool)
}

// AssetQuerier reads on-chain records. Implemented by assets.Client.
type AssetQuerier interface {
	ListAssets(ctx context.Context, scope assets.Scope) ([]domain.Asset, error)
	GetAsset(ctx context.Context, id string) (*domain.Asset, error)
	GetListing(ctx context.Context, modelID string) (*domain.Listing, error)
}

type Handler struct {
	jobs    JobSnapshots
	handles storage.JobHandleStore
	assets  AssetQuerier
	log     logging.Logger
}

func NewHandler(jobs JobSnapshots, handles storage.JobHandleStore, assets AssetQuerier, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Default()
	}
	return &Handler{jobs: jobs, handles: handles, assets: assets, log: log.With("component", "api")}
}

// Router mounts every route. metrics may be nil.
func (h *Handler) Router(metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet)
	v1.HandleFunc("/owners/{address}/jobs", h.ListOwnerJobs).Methods(http.MethodGet)
	v1.HandleFunc("/owners/{address}/assets", h.ListOwnerAssets).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}", h.GetAsset).Methods(http.MethodGet)
	v1.HandleFunc("/listings", h.ListListings).Methods(http.MethodGet)
	v1.HandleFunc("/models/{id}/listing", h.GetListing).Methods(http.MethodGet)
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetJob prefers the live tracker state and falls back to the stored handle.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	stored, err := h.handles.GetByID(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.fail(w, r, err)
		return
	}

	live, tracked := domain.Job{}, false
	if h.jobs != nil {
		live, tracked = h.jobs.Snapshot(id)
	}
	if stored == nil && !tracked {
		respondWithError(w, http.StatusNotFound, "job not found")
		return
	}

	view := jobView{}
	if stored != nil {
		view = newJobView(stored)
	}
	if tracked {
		view.applyLive(live)
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *Handler) ListOwnerJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	handles, err := h.handles.ListByOwner(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]jobView, 0, len(handles))
	for _, hd := range handles {
		v := newJobView(hd)
		if h.jobs != nil {
			if live, ok := h.jobs.Snapshot(hd.ID); ok {
				v.applyLive(live)
			}
		}
		views = append(views, v)
	}
	respondWithJSON(w, http.StatusOK, views)
}

// ListOwnerAssets lists records owned by an address. ?kind=image selects
// images; models are the default.
func (h *Handler) ListOwnerAssets(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	kind := domain.AssetKindModel
	switch strings.ToUpper(r.URL.Query().Get("kind")) {
	case "", string(domain.AssetKindModel):
	case string(domain.AssetKindImage):
		kind = domain.AssetKindImage
	default:
		respondWithError(w, http.StatusBadRequest, "kind must be model or image")
		return
	}

	list, err := h.assets.ListAssets(r.Context(), assets.OwnedBy(owner, kind))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newAssetViews(list))
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.assets.GetAsset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newAssetView(*a))
}

func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	list, err := h.assets.ListAssets(r.Context(), assets.Listed())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newAssetViews(list))
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.assets.GetListing(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if l == nil {
		respondWithError(w, http.StatusNotFound, "model is not listed")
		return
	}
	respondWithJSON(w, http.StatusOK, listingView{KioskID: l.KioskID, PriceMist: l.Price})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	respondWithError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, sui.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDecode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := mux.Vars(r)[name]
	addr, err := ptb.NormalizeAddress(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return addr, true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
