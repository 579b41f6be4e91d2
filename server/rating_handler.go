package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mediacore/core/rating"
	"mediacore/model"

	"github.com/gorilla/mux"
)

// RatingHandler 处理评分相关的 API
type RatingHandler struct {
	coordinator *rating.Coordinator
	reader      *rating.Reader
}

// NewRatingHandler 创建评分处理器
func NewRatingHandler(coordinator *rating.Coordinator, reader *rating.Reader) *RatingHandler {
	return &RatingHandler{coordinator: coordinator, reader: reader}
}

type createRatingRequest struct {
	TrackID int64   `json:"trackId"`
	Value   int     `json:"value"`
	Review  *string `json:"review"`
}

type updateRatingRequest struct {
	Value  *int    `json:"value"`
	Review *string `json:"review"`
}

const maxRatingBody = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRatingBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}

// CreateRatingHandler POST /ratings
func (h *RatingHandler) CreateRatingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createRatingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TrackID <= 0 {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	result, err := h.coordinator.Create(r.Context(), rating.CreateInput{
		TrackID: req.TrackID,
		UserID:  userID,
		Value:   req.Value,
		Review:  req.Review,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// UpdateRatingHandler PUT /ratings/{id}
func (h *RatingHandler) UpdateRatingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	ratingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateRatingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == nil && req.Review == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	result, err := h.coordinator.Update(r.Context(), ratingID, userID, rating.UpdateInput{
		Value:  req.Value,
		Review: req.Review,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteRatingHandler DELETE /ratings/{id}
func (h *RatingHandler) DeleteRatingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	ratingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	agg, err := h.coordinator.Delete(r.Context(), ratingID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.RatingAggregate{"track": agg})
}

// GetRatingHandler GET /ratings/{id}
func (h *RatingHandler) GetRatingHandler(w http.ResponseWriter, r *http.Request) {
	ratingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	row, err := h.reader.Get(r.Context(), ratingID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ListTrackRatingsHandler GET /ratings/track/{trackId}
func (h *RatingHandler) ListTrackRatingsHandler(w http.ResponseWriter, r *http.Request) {
	trackID, ok := pathID(w, r, "trackId")
	if !ok {
		return
	}
	rows, err := h.reader.ListByTrack(r.Context(), trackID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []*model.Rating{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// TrackStatsHandler GET /ratings/track/{trackId}/stats
func (h *RatingHandler) TrackStatsHandler(w http.ResponseWriter, r *http.Request) {
	trackID, ok := pathID(w, r, "trackId")
	if !ok {
		return
	}
	stats, err := h.reader.Stats(r.Context(), trackID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
