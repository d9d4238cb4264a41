package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- scans ---

func (s *Server) postIdentify(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.StartIdentify(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scanning"})
}

func (s *Server) postScanCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.CancelScan(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) postAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.StartAuthorize(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scanning"})
}

// --- catalog ---

func (s *Server) getStrains(w http.ResponseWriter, r *http.Request) {
	f, err := strainFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: err.Error()})
		return
	}
	out, err := s.catalog.ListStrains(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strains": out})
}

func strainFilter(r *http.Request) (model.StrainFilter, error) {
	q := r.URL.Query()
	f := model.StrainFilter{
		Category: model.Category(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("q")),
		Sort:     model.StrainSort(q.Get("sort")),
	}
	for name, dst := range map[string]**float64{"min_potency": &f.MinPotency, "max_potency": &f.MaxPotency} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return model.StrainFilter{}, err
			}
			*dst = &v
		}
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return model.StrainFilter{}, err
			}
			*dst = v
		}
	}
	return f, nil
}

func (s *Server) getStrainUnits(w http.ResponseWriter, r *http.Request) {
	strain := chi.URLParam(r, "strain")
	units, err := s.catalog.UnitsByStrain(r.Context(), strain)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

type tierDTO struct {
	Strain    string  `json:"strain"`
	MassGrams float64 `json:"mass_grams"`
	Available int     `json:"available"`
	Selected  int     `json:"selected"`
}

func (s *Server) getStrainTiers(w http.ResponseWriter, r *http.Request) {
	strain := chi.URLParam(r, "strain")
	tiers, err := s.orch.Tiers(r.Context(), strain)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tierDTO, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, tierDTO{
			Strain:    t.Strain,
			MassGrams: t.MassGrams,
			Available: t.Remaining(),
			Selected:  t.Selected,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": out})
}

// --- selection ---

type addUnitRequest struct {
	UnitID    string   `json:"unit_id,omitempty"`
	Strain    string   `json:"strain,omitempty"`
	MassGrams *float64 `json:"mass_grams,omitempty"`
}

func (s *Server) postSelectionUnit(w http.ResponseWriter, r *http.Request) {
	var req addUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: "invalid body"})
		return
	}

	switch {
	case req.UnitID != "":
		id, err := uuid.FromString(req.UnitID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: "invalid unit_id"})
			return
		}
		vs, err := s.orch.AddUnit(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(vs) > 0 {
			writeViolations(w, vs)
			return
		}
	case req.Strain != "":
		vs, err := s.orch.AddTier(r.Context(), req.Strain, req.MassGrams)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(vs) > 0 {
			writeViolations(w, vs)
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: "unit_id or strain required"})
		return
	}

	writeJSON(w, http.StatusCreated, s.orch.Snapshot())
}

func (s *Server) deleteSelectionUnit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: "invalid unit id"})
		return
	}
	if err := s.orch.RemoveUnit(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) postSelectionClear(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearSelection(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

// --- shortlist ---

type shortlistRequest struct {
	Strain string `json:"strain"`
}

func (s *Server) postShortlist(w http.ResponseWriter, r *http.Request) {
	var req shortlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Strain == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: "strain required"})
		return
	}
	if err := s.orch.AddShortlist(req.Strain); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) deleteShortlist(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.RemoveShortlist(chi.URLParam(r, "strain")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

// --- review / finalize ---

type reviewRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) postReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Detail: "invalid body"})
			return
		}
	}
	if err := s.orch.Review(req.Notes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) postReviewBack(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.BackToSelect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) postPartialAck(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.AcknowledgePartialFailure(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	s.orch.Reset()
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}
