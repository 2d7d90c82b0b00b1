package api

import (
	"net/http"
	"strconv"

	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/types"
)

type participantsResponse struct {
	Account      string           `json:"account"`
	Participants []types.Standing `json:"participants"`
}

type historyResponse struct {
	ParticipantID int64                `json:"participantId"`
	Records       []model.PointsRecord `json:"records"`
}

// ParticipantsHandler serves standings and ledger history.
type ParticipantsHandler struct {
	deps Dependencies
}

// NewParticipantsHandler creates a new participants handler.
func NewParticipantsHandler(deps Dependencies) *ParticipantsHandler {
	return &ParticipantsHandler{deps: deps}
}

// HandleList handles GET /participants.
func (h *ParticipantsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_participants"
	account := accountOf(r)
	ss, err := h.deps.Participants(r.Context(), account)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if ss == nil {
		ss = []types.Standing{}
	}
	writeJSON(w, http.StatusOK, participantsResponse{Account: account, Participants: ss})
}

// HandleHistory handles GET /participants/{id}/history.
func (h *ParticipantsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.participant_history"
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(w, NewKind(op, ErrBadRequest))
		return
	}
	records, err := h.deps.History(r.Context(), accountOf(r), id)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if records == nil {
		records = []model.PointsRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{ParticipantID: id, Records: records})
}
