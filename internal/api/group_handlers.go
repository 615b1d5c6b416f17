package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/util"
)

// groupSummary is the list item of GET /groups.
type groupSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// groupDetail is the body of GET /groups/{id} and POST /groups.
type groupDetail struct {
	GroupID     string `json:"group_id"`
	GroupName   string `json:"group_name"`
	Area        string `json:"area"`
	MemberCount int    `json:"member_count,omitempty"`
}

// groupRequest is the body of POST /groups and PUT /groups/{id}.
type groupRequest struct {
	Name string `json:"name"`
}

func (s *Server) listGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups()
	if err != nil {
		slog.Error("Server.listGroupsHandler: list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	body := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		body = append(body, groupSummary{ID: g.GroupID, Name: g.GroupName})
	}
	writeJSONResponse(w, http.StatusOK, body)
}

func (s *Server) createGroupHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, `"name" is required.`)
		return
	}

	// Retry on the unlikely code collision.
	var group models.Group
	for attempt := 0; ; attempt++ {
		group = models.Group{
			GroupID:   util.GenerateGroupCode(models.GroupIDLength),
			GroupName: req.Name,
			Area:      models.DefaultArea,
		}
		existing, err := s.store.GetGroup(group.GroupID)
		if err != nil {
			slog.Error("Server.createGroupHandler: lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create group")
			return
		}
		if existing == nil {
			break
		}
		if attempt >= 5 {
			slog.Error("Server.createGroupHandler: could not generate a free group code")
			writeError(w, http.StatusInternalServerError, "failed to create group")
			return
		}
	}
	if err := s.store.CreateGroup(group); err != nil {
		slog.Error("Server.createGroupHandler: create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	slog.Info("Server.createGroupHandler: group created", "group_id", group.GroupID, "name", group.GroupName)
	writeJSONResponse(w, http.StatusOK, groupDetail{
		GroupID:   group.GroupID,
		GroupName: group.GroupName,
		Area:      group.Area,
	})
}

func (s *Server) getGroupHandler(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		slog.Error("Server.getGroupHandler: lookup failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "group does not exist")
		return
	}
	count, err := s.store.CountGroupMembers(groupID)
	if err != nil {
		slog.Error("Server.getGroupHandler: member count failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	writeJSONResponse(w, http.StatusOK, groupDetail{
		GroupID:     group.GroupID,
		GroupName:   group.GroupName,
		Area:        group.Area,
		MemberCount: count,
	})
}

func (s *Server) updateGroupHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	groupID := chi.URLParam(r, "groupID")
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, `"name" is required.`)
		return
	}
	if err := s.store.UpdateGroupName(groupID, req.Name); err != nil {
		if errors.Is(err, models.ErrGroupNotFound) {
			writeError(w, http.StatusNotFound, "group does not exist")
			return
		}
		slog.Error("Server.updateGroupHandler: update failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update group")
		return
	}
	slog.Info("Server.updateGroupHandler: group renamed", "group_id", groupID, "name", req.Name)
	writeJSONResponse(w, http.StatusOK, groupDetail{
		GroupID:   groupID,
		GroupName: req.Name,
		Area:      models.DefaultArea,
	})
}

func (s *Server) deleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if err := s.store.DeleteGroup(groupID); err != nil {
		switch {
		case errors.Is(err, models.ErrGroupNotFound):
			writeError(w, http.StatusNotFound, "group does not exist")
		case errors.Is(err, models.ErrGroupNotEmpty):
			writeError(w, http.StatusBadRequest, "group still has members")
		default:
			slog.Error("Server.deleteGroupHandler: delete failed", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete group")
		}
		return
	}
	slog.Info("Server.deleteGroupHandler: group deleted", "group_id", groupID)
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}
