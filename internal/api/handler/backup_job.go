package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	mw "github.com/edvin/tenant-backup/internal/api/middleware"
	"github.com/edvin/tenant-backup/internal/api/request"
	"github.com/edvin/tenant-backup/internal/api/response"
	"github.com/edvin/tenant-backup/internal/core"
	"github.com/edvin/tenant-backup/internal/export"
	"github.com/edvin/tenant-backup/internal/model"
	"github.com/edvin/tenant-backup/internal/runner"
)

// queueRetryAfter is what a client is told to wait when the queue is full.
const queueRetryAfter = 30 * time.Second

// BackupJobManager is the job service behind the handler. *runner.Manager
// satisfies it.
type BackupJobManager interface {
	Create(ctx context.Context, tenantID, actorID string, filters model.BackupFilters) (*model.BackupJob, error)
	Get(ctx context.Context, id string) (*model.BackupJob, error)
	List(ctx context.Context, tenantID string, limit int, cursor string) ([]model.BackupJob, bool, error)
	Download(ctx context.Context, id, actorID string) (*runner.Download, error)
	Delete(ctx context.Context, id, actorID string) error
}

// AuditTrail lists audit entries. *core.AuditLogger satisfies it.
type AuditTrail interface {
	ListByTarget(ctx context.Context, targetType, targetID string) ([]model.AuditLog, error)
}

type BackupJob struct {
	svc   BackupJobManager
	audit AuditTrail
	loc   *time.Location
	now   func() time.Time
}

func NewBackupJob(svc BackupJobManager, audit AuditTrail, loc *time.Location) *BackupJob {
	if loc == nil {
		loc = time.UTC
	}
	return &BackupJob{svc: svc, audit: audit, loc: loc, now: time.Now}
}

// backupJobView is the API representation of a job. Status reports expired
// for ready jobs past their retention window.
type backupJobView struct {
	*model.BackupJob
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (h *BackupJob) view(job *model.BackupJob) backupJobView {
	v := backupJobView{BackupJob: job, Status: job.DisplayStatus(h.now())}
	if job.Status == model.BackupStatusReady {
		v.DownloadURL = "/api/v1/backups/" + job.ID + "/download"
	}
	return v
}

// Create godoc
//
//	@Summary		Create a backup job
//	@Description	Queues an export of the tenant's data. Returns immediately with the queued job.
//	@Tags			Backups
//	@Param			tenantID	path		string					true	"Tenant ID"
//	@Param			body		body		request.CreateBackupJob	true	"Backup filters"
//	@Success		202			{object}	handler.backupJobView
//	@Failure		400			{object}	response.ErrorResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Failure		503			{object}	response.ErrorResponse
//	@Router			/tenants/{tenantID}/backups [post]
func (h *BackupJob) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.CreateBackupJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters, err := req.Filters(h.loc)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Create(r.Context(), tenantID, mw.GetActorID(r.Context()), filters)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusAccepted, h.view(job))
}

// ListByTenant godoc
//
//	@Summary	List a tenant's backup jobs
//	@Tags		Backups
//	@Param		tenantID	path		string	true	"Tenant ID"
//	@Param		cursor		query		string	false	"Pagination cursor"
//	@Param		limit		query		int		false	"Page size (default 50)"
//	@Success	200			{object}	response.PaginatedResponse{items=[]handler.backupJobView}
//	@Router		/tenants/{tenantID}/backups [get]
func (h *BackupJob) ListByTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pg, err := request.ParsePagination(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, hasMore, err := h.svc.List(r.Context(), tenantID, pg.Limit, pg.Cursor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]backupJobView, len(jobs))
	for i := range jobs {
		items[i] = h.view(&jobs[i])
	}

	var nextCursor string
	if hasMore && len(jobs) > 0 {
		nextCursor = jobs[len(jobs)-1].Token
	}
	response.WritePaginated(w, http.StatusOK, items, nextCursor, hasMore)
}

// Get godoc
//
//	@Summary	Get a backup job
//	@Tags		Backups
//	@Param		id	path		string	true	"Job ID"
//	@Success	200	{object}	handler.backupJobView
//	@Failure	404	{object}	response.ErrorResponse
//	@Router		/backups/{id} [get]
func (h *BackupJob) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, h.view(job))
}

// Download godoc
//
//	@Summary	Download a finished backup archive
//	@Tags		Backups
//	@Produce	application/zip
//	@Param		id	path	string	true	"Job ID"
//	@Success	200
//	@Failure	404	{object}	response.ErrorResponse
//	@Router		/backups/{id}/download [get]
func (h *BackupJob) Download(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	dl, err := h.svc.Download(r.Context(), id, mw.GetActorID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer dl.File.Close()

	// Large archives outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, dl.Filename))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, dl.Filename, dl.ModTime, dl.File)
}

// Delete godoc
//
//	@Summary		Delete a backup job
//	@Description	Cancels the job if it is running and removes its archive.
//	@Tags			Backups
//	@Param			id	path	string	true	"Job ID"
//	@Success		204
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/backups/{id} [delete]
func (h *BackupJob) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id, mw.GetActorID(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuditLogs godoc
//
//	@Summary	List a backup job's audit trail
//	@Tags		Backups
//	@Param		id	path		string	true	"Job ID"
//	@Success	200	{object}	[]model.AuditLog
//	@Failure	404	{object}	response.ErrorResponse
//	@Router		/backups/{id}/audit-logs [get]
func (h *BackupJob) AuditLogs(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	entries, err := h.audit.ListByTarget(r.Context(), model.AuditTargetBackupJob, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.AuditLog{}
	}
	response.WriteJSON(w, http.StatusOK, entries)
}

// writeServiceError maps service errors to status codes. Unexpected errors
// are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrTenantNotFound):
		response.WriteError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, core.ErrNotReady):
		response.WriteError(w, http.StatusNotFound, "backup not found or not ready")
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, "backup not found")
	case errors.Is(err, export.ErrUnknownModule):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidTransition):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, runner.ErrQueueFull):
		response.WriteUnavailable(w, "backup queue is full, try again later", queueRetryAfter)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		response.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
