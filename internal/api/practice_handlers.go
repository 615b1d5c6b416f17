package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/util"
	"github.com/BTreeMap/KeikobaBot/internal/venues"
)

// adminUserName labels audit entries written through the admin API.
const adminUserName = "管理者"

// practiceRequest is the body of POST /groups/{id}/practices.
type practiceRequest struct {
	Place     string `json:"place"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// practiceDeleteRequest names the practice DELETE removes.
type practiceDeleteRequest struct {
	Place     string `json:"place"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

func (s *Server) listPracticesHandler(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		slog.Error("Server.listPracticesHandler: group lookup failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "group does not exist")
		return
	}
	today := time.Now().Format(models.DateLayout)
	practices, err := s.store.ListPracticesFrom(groupID, today)
	if err != nil {
		slog.Error("Server.listPracticesHandler: list failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list practices")
		return
	}
	if practices == nil {
		practices = []models.Practice{}
	}
	writeJSONResponse(w, http.StatusOK, practices)
}

// validatePracticeRequest runs the field-level validation chain of the
// create endpoint. The returned error text goes straight into the 400 body.
func validatePracticeRequest(req practiceRequest, area string, now time.Time) error {
	if req.Place == "" || req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		return fmt.Errorf(`"place", "date", "start_time" and "end_time" are required`)
	}
	if _, ok := venues.Lookup(area, req.Place); !ok {
		return models.ErrUnknownPlace
	}
	if _, err := util.ParseDate(req.Date); err != nil {
		return models.ErrInvalidDate
	}
	before, err := util.IsBeforeDay(req.Date, now)
	if err != nil {
		return models.ErrInvalidDate
	}
	if before {
		return models.ErrDateBeforeToday
	}
	if _, err := util.ParseClock(req.StartTime); err != nil {
		return models.ErrInvalidTime
	}
	if _, err := util.ParseClock(req.EndTime); err != nil {
		return models.ErrInvalidTime
	}
	startBeforeEnd, err := util.IsClockBefore(req.StartTime, req.EndTime)
	if err != nil {
		return models.ErrInvalidTime
	}
	if !startBeforeEnd {
		return models.ErrEndNotAfterStart
	}
	return nil
}

func (s *Server) createPracticeHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	groupID := chi.URLParam(r, "groupID")
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		slog.Error("Server.createPracticeHandler: group lookup failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "group does not exist")
		return
	}

	var req practiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validatePracticeRequest(req, group.Area, time.Now()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	practice := models.Practice{
		GroupID:        groupID,
		DateStartPlace: models.PracticeKey(req.Date, req.StartTime, req.Place),
		GroupName:      group.GroupName,
		Place:          req.Place,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
	}
	if v, ok := venues.Lookup(group.Area, req.Place); ok {
		practice.Address = v.Address
	}
	if err := s.store.CreatePractice(practice); err != nil {
		if errors.Is(err, models.ErrPracticeExists) {
			writeError(w, http.StatusBadRequest, models.ErrPracticeExists.Error())
			return
		}
		slog.Error("Server.createPracticeHandler: create failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create practice")
		return
	}
	slog.Info("Server.createPracticeHandler: practice created", "group_id", groupID, "key", practice.DateStartPlace)

	entry := fmt.Sprintf("%sが%s %s〜%s@%sの稽古をAdmin APIで追加しました",
		adminUserName, req.Date, req.StartTime, req.EndTime, req.Place)
	if err := s.store.AppendPracticeLog(groupID, entry); err != nil {
		slog.Error("Server.createPracticeHandler: audit log write failed", "group_id", groupID, "error", err)
	}
	writeJSONResponse(w, http.StatusOK, practice)
}

func (s *Server) deletePracticeHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	groupID := chi.URLParam(r, "groupID")
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		slog.Error("Server.deletePracticeHandler: group lookup failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "group does not exist")
		return
	}

	var req practiceDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Place == "" || req.Date == "" || req.StartTime == "" {
		writeError(w, http.StatusBadRequest, `"place", "date" and "start_time" are required`)
		return
	}

	key := models.PracticeKey(req.Date, req.StartTime, req.Place)
	if err := s.store.DeletePractice(groupID, key); err != nil {
		if errors.Is(err, models.ErrPracticeNotFound) {
			writeError(w, http.StatusNotFound, "practice does not exist")
			return
		}
		slog.Error("Server.deletePracticeHandler: delete failed", "group_id", groupID, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete practice")
		return
	}
	slog.Info("Server.deletePracticeHandler: practice deleted", "group_id", groupID, "key", key)

	entry := fmt.Sprintf("%sが%s %s@%sの稽古をAdmin APIで削除しました",
		adminUserName, req.Date, req.StartTime, req.Place)
	if err := s.store.AppendPracticeLog(groupID, entry); err != nil {
		slog.Error("Server.deletePracticeHandler: audit log write failed", "group_id", groupID, "error", err)
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}
