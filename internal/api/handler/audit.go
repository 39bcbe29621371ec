package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/audit"
	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/shared"
)

const (
	defaultAuditLimit = 1000
	maxAuditLimit     = 10000
)

// AuditService: запросы и операторские действия audit.Service.
type AuditService interface {
	Query(ctx context.Context, f audit.Filter, limit int) ([]audit.Record, error)
	DeadLetters(ctx context.Context) ([]audit.DeadLetter, error)
	Replay(ctx context.Context) (audit.ReplayResult, error)
}

type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audit-handler")}
}

// RecordDTO: запись аудита для ответа; occurredAt в ISO-8601.
type RecordDTO struct {
	RecordID      string `json:"recordId"`
	SourceEventID string `json:"sourceEventId"`
	Actor         string `json:"actor"`
	Action        string `json:"action"`
	SubjectType   string `json:"subjectType"`
	SubjectID     string `json:"subjectId"`
	Outcome       string `json:"outcome"`
	OccurredAt    string `json:"occurredAt"`
}

func toDTO(r audit.Record) RecordDTO {
	return RecordDTO{
		RecordID:      r.RecordID,
		SourceEventID: r.SourceEventID,
		Actor:         r.Actor,
		Action:        r.Action,
		SubjectType:   r.SubjectType,
		SubjectID:     r.SubjectID,
		Outcome:       r.Outcome,
		OccurredAt:    shared.FormatISO(r.OccurredAt),
	}
}

type DeadLetterDTO struct {
	Record   RecordDTO `json:"record"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt string    `json:"failedAt"`
}

// List возвращает подходящие записи по возрастанию occurredAt.
// GET /audit?subjectType=&actor=&from=&to=&limit=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	f, limit, err := parseFilter(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	records, err := h.service.Query(r.Context(), f, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, lo.Map(records, func(rec audit.Record, _ int) RecordDTO { return toDTO(rec) }))
}

// DeadLetters показывает записи, отложенные после неудачной записи.
// GET /audit/dead-letters
func (h *AuditHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	dls, err := h.service.DeadLetters(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, lo.Map(dls, func(dl audit.DeadLetter, _ int) DeadLetterDTO {
		return DeadLetterDTO{
			Record:   toDTO(dl.Record),
			Error:    dl.Error,
			Attempts: dl.Attempts,
			FailedAt: shared.FormatISO(dl.FailedAt),
		}
	}))
}

// Replay повторяет все отложенные записи.
// POST /audit/dead-letters/replay
func (h *AuditHandler) Replay(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Replay(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func parseFilter(r *http.Request) (audit.Filter, int, error) {
	q := r.URL.Query()
	f := audit.Filter{
		SubjectType: q.Get("subjectType"),
		Actor:       q.Get("actor"),
	}

	var err error
	if f.From, err = shared.ParseInstant(q.Get("from")); err != nil {
		return f, 0, domain.NewInvalidInput("from", err)
	}
	if f.To, err = shared.ParseInstant(q.Get("to")); err != nil {
		return f, 0, domain.NewInvalidInput("to", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, 0, domain.NewInvalidInput("to", errInvertedRange)
	}

	limit := defaultAuditLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxAuditLimit {
			return f, 0, domain.NewInvalidInput("limit", errBadLimit)
		}
		limit = n
	}
	return f, limit, nil
}
