package checklists

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/services"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the file size cap
const multipartOverhead = 1 << 20

// @Summary      Upload attachment
// @Description  Attaches one evidence file to an item response. The file type is checked against its content, not only its extension.
// @Tags         Attachments
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        id           path      string  true  "Checklist ID"
// @Param        response_id  formData  string  true  "Item response ID"
// @Param        file         formData  file    true  "Evidence file"
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_ATTACHMENT, ATTACHMENT_TOO_LARGE or INVALID_ID"
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND or ITEM_RESPONSE_NOT_FOUND"
// @Failure      409  {object}  respond.Envelope  "RESPONSE_APPROVED or CHECKLIST_FINALIZED"
// @Failure      502  {object}  respond.Envelope  "STORAGE_ERROR"
// @Router       /api/v1/checklists/{id}/attachments [post]
// UploadAttachment handles POST /api/v1/checklists/:id/attachments
func (h *Handlers) UploadAttachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		instanceID, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		maxSize := h.attachments.Policy().MaxSize()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respond.Error(c, apperrors.Validation("ATTACHMENT_TOO_LARGE", "file exceeds the %d byte limit", maxSize))
				return
			}
			respond.Error(c, apperrors.Validation("INVALID_REQUEST", "multipart field 'file' is required"))
			return
		}
		responseID := strings.TrimSpace(c.PostForm("response_id"))
		if responseID == "" {
			respond.Error(c, apperrors.Validation("INVALID_REQUEST", "multipart field 'response_id' is required"))
			return
		}
		if !isUUID(responseID) {
			respond.Error(c, apperrors.Validation("INVALID_ID", "response_id must be a uuid"))
			return
		}

		f, err := fh.Open()
		if err != nil {
			respond.Error(c, apperrors.Validation("INVALID_REQUEST", "uploaded file could not be read"))
			return
		}
		defer f.Close()

		tenantID, userID := session(c)
		a, err := h.attachments.Upload(c.Request.Context(), tenantID, userID, services.UploadInput{
			InstanceID: instanceID,
			ResponseID: responseID,
			Filename:   fh.Filename,
			Size:       fh.Size,
			Body:       f,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Created(c, a)
	}
}

// @Summary      List attachments
// @Tags         Attachments
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Checklist ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND"
// @Router       /api/v1/checklists/{id}/attachments [get]
// ListAttachments handles GET /api/v1/checklists/:id/attachments
func (h *Handlers) ListAttachments() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		list, err := h.attachments.List(c.Request.Context(), tenantID, id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, list)
	}
}

// @Summary      Download attachment
// @Description  Streams the stored file. Images and PDFs are served inline, everything else as a download.
// @Tags         Attachments
// @Security     Bearer
// @Produce      octet-stream
// @Param        id  path  string  true  "Attachment ID"
// @Success      200  {file}    binary
// @Failure      404  {object}  respond.Envelope  "ATTACHMENT_NOT_FOUND"
// @Failure      502  {object}  respond.Envelope  "STORAGE_ERROR"
// @Router       /api/v1/checklists/attachments/{id}/download [get]
// DownloadAttachment handles GET /api/v1/checklists/attachments/:id/download
func (h *Handlers) DownloadAttachment() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "attachment")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		a, rc, err := h.attachments.Download(c.Request.Context(), tenantID, id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		defer rc.Close()

		disposition := "attachment"
		if a.DisplayInline() {
			disposition = "inline"
		}
		c.DataFromReader(http.StatusOK, a.SizeBytes, a.ContentType, rc, map[string]string{
			"Content-Disposition":    mime.FormatMediaType(disposition, map[string]string{"filename": a.OriginalFilename}),
			"X-Content-Type-Options": "nosniff",
			"Cache-Control":          "private, no-store",
		})
	}
}
