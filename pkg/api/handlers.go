package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/softwarestrategies/dispatch/pkg/ingest"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// maxBatchSize bounds one batch submission.
const maxBatchSize = 1000

// checkRequest runs tag validation plus semantic checks
func (s *Server) checkRequest(req *SubmitRequest, now time.Time) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0]
			return errors.New("invalid field " + strings.ToLower(field.Field()) + ": failed " + field.Tag())
		}
		return err
	}
	return req.checkSemantics(now)
}

// toMessage assigns the message identity and builds the buffer message
func (s *Server) toMessage(req *SubmitRequest, now time.Time) *ingest.Message {
	maxRetries := s.maxRetriesDefault
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	return &ingest.Message{
		MessageID:     uuid.NewString(),
		ExternalJobID: req.ExternalJobID,
		Source:        req.Source,
		ScheduledAt:   req.ScheduledAt.UTC(),
		DeliveryType:  types.DeliveryType(req.DeliveryType),
		Destination:   req.Destination,
		Payload:       req.Payload,
		MaxRetries:    maxRetries,
		ReceivedAt:    now,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}

	now := time.Now().UTC()
	if err := s.checkRequest(&req, now); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	msg := s.toMessage(&req, now)
	if err := s.submitter.SendEvent(r.Context(), msg); err != nil {
		s.logger.Error().Err(err).Str("external_job_id", req.ExternalJobID).Msg("Buffer publish failed")
		writeError(w, http.StatusServiceUnavailable, "BUFFER_UNAVAILABLE", "submission buffer unavailable")
		return
	}

	metrics.EventsReceived.Inc()
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		MessageID: msg.MessageID,
		Message:   "Event queued for processing",
	})
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}
	reqs := batch.Events
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "batch is empty")
		return
	}
	if len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "VALIDATION", "batch exceeds "+strconv.Itoa(maxBatchSize)+" entries")
		return
	}

	now := time.Now().UTC()
	resp := BatchResponse{
		Total:    len(reqs),
		Accepted: []string{},
		Rejected: []BatchRejection{},
	}
	for i := range reqs {
		req := &reqs[i]
		if err := s.checkRequest(req, now); err != nil {
			resp.Rejected = append(resp.Rejected, BatchRejection{
				Index:         i,
				ExternalJobID: req.ExternalJobID,
				Reason:        err.Error(),
			})
			continue
		}
		msg := s.toMessage(req, now)
		if err := s.submitter.SendEvent(r.Context(), msg); err != nil {
			s.logger.Error().Err(err).Str("external_job_id", req.ExternalJobID).Msg("Buffer publish failed")
			resp.Rejected = append(resp.Rejected, BatchRejection{
				Index:         i,
				ExternalJobID: req.ExternalJobID,
				Reason:        "submission buffer unavailable",
			})
			continue
		}
		metrics.EventsReceived.Inc()
		resp.Accepted = append(resp.Accepted, msg.MessageID)
	}
	resp.AcceptedCount = len(resp.Accepted)
	resp.RejectedCount = len(resp.Rejected)

	writeJSON(w, http.StatusAccepted, resp)
}

// eventID validates the path id before it reaches the uuid column. A
// malformed id can never match a row, so it reports not-found rather than a
// driver error.
func eventID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "event not found")
		return "", false
	}
	return id, true
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	event, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleGetByExternal(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.GetByExternalJobID(r.Context(), chi.URLParam(r, "externalJobID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleListByExternal(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListByExternalJobID(r.Context(), chi.URLParam(r, "externalJobID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCancelByID(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	if err := s.store.CancelByID(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event cancelled"})
}

func (s *Server) handleCancelByExternal(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CancelByExternalJobID(r.Context(), chi.URLParam(r, "externalJobID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: count})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatisticsResponse{
		Pending:      stats.Pending,
		Processing:   stats.Processing,
		Completed:    stats.Completed,
		DeadLetter:   stats.DeadLetter,
		Cancelled:    stats.Cancelled,
		Total:        stats.Total(),
		UpcomingHour: stats.UpcomingHour,
	})
}

func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" {
		writeError(w, http.StatusForbidden, "ADMIN_DISABLED", "admin token is not configured")
		return
	}
	auth := r.Header.Get("Authorization")
	if auth != "Bearer "+s.adminToken {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid admin token")
		return
	}

	days := s.retentionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION", "days must be a positive integer")
			return
		}
		days = parsed
	}

	deleted, err := s.cleaner.Run(r.Context(), days)
	if err != nil {
		s.logger.Error().Err(err).Msg("Manual cleanup failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}
