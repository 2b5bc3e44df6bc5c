package handler

import (
	"MedVault/internal/dto"
	"MedVault/internal/service"
	"MedVault/utils"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ListRecords returns the caller's records, newest first.
func (h *Handler) ListRecords(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	records, err := h.Records.ListRecords(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) SearchRecords(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	records, err := h.Records.SearchRecords(c.Request.Context(), userID, c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// UploadRecords accepts files[] (or a single file) plus record metadata.
func (h *Handler) UploadRecords(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	headers := form.File["files[]"]
	if len(headers) == 0 {
		headers = append(form.File["files"], form.File["file"]...)
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	var metaReq dto.UploadMetadata
	if err := c.ShouldBind(&metaReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
		return
	}
	meta, err := parseMetadata(metaReq)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open uploaded file failed: " + fh.Filename})
			return
		}
		defer f.Close()
		files = append(files, service.UploadFile{
			Name:        fh.Filename,
			ContentType: contentType(fh),
			Size:        fh.Size,
			Reader:      f,
		})
	}

	results := h.Records.UploadMedicalRecords(c.Request.Context(), userID, files, meta)
	resp := dto.UploadResponse{Results: results}
	for _, r := range results {
		if r.Err != nil {
			resp.Failed++
		} else {
			resp.Uploaded++
		}
	}
	if len(results) == 1 && results[0].Err != nil {
		h.fail(c, results[0].Err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func contentType(fh *multipart.FileHeader) string {
	return fh.Header.Get("Content-Type")
}

func parseMetadata(req dto.UploadMetadata) (service.RecordMetadata, error) {
	meta := service.RecordMetadata{
		RecordType:   req.RecordType,
		ProviderName: req.ProviderName,
		Notes:        req.Notes,
	}
	raw := strings.TrimSpace(req.RecordDate)
	if raw == "" {
		return meta, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			meta.RecordDate = &t
			return meta, nil
		}
	}
	return meta, fmt.Errorf("invalid record_date %q: want YYYY-MM-DD or RFC3339", raw)
}

// RecordURL returns a signed download URL for one of the caller's records.
func (h *Handler) RecordURL(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resolved, err := h.Records.RecordURL(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (h *Handler) DeleteRecord(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Records.DeleteMedicalRecord(c.Request.Context(), userID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "record deleted"})
}
