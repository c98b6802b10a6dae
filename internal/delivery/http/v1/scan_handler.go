package v1

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"file-scan-backend/internal/delivery/http/response"
	"file-scan-backend/internal/domain"
	"file-scan-backend/pkg/apperror"
	"file-scan-backend/pkg/validation"

	"github.com/gin-gonic/gin"
)

// Room for multipart boundaries and the mode field on top of the file itself.
const multipartOverhead = 1 << 20

type ScanHandler struct {
	scanUC         domain.ScanUsecase
	maxUploadBytes int64
	uploadDir      string
}

type submitScanForm struct {
	Mode string `form:"mode" binding:"omitempty,oneof=sync async"`
}

type scanURI struct {
	ID string `uri:"id" binding:"required,scan_id"`
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// NewScanHandler registers the scan routes. upload guards the submission endpoint.
func NewScanHandler(r *gin.RouterGroup, scanUC domain.ScanUsecase, maxUploadBytes int64, uploadDir string, upload gin.HandlerFunc) {
	handler := &ScanHandler{
		scanUC:         scanUC,
		maxUploadBytes: maxUploadBytes,
		uploadDir:      uploadDir,
	}

	scans := r.Group("/scans")
	scans.POST("", upload, handler.SubmitScan)
	scans.GET("/history", handler.ListHistory)
	scans.GET("/:id", handler.GetResult)
	scans.GET("/:id/status", handler.GetStatus)
}

// SubmitScan godoc
// @Summary      Submit File For Scanning
// @Description  Upload a file. By default the call blocks until the scan completes; with mode=async it returns 202 and the scan can be polled.
// @Tags         scans
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file    true   "File to scan"
// @Param        mode  formData  string  false  "sync (default) or async"
// @Success      200   {object}  response.Response{data=domain.ScanRecord}
// @Success      202   {object}  response.Response{data=domain.ScanStatus}
// @Failure      400   {object}  response.Response
// @Failure      413   {object}  response.Response
// @Failure      422   {object}  response.Response
// @Failure      429   {object}  response.Response
// @Router       /scans [post]
func (h *ScanHandler) SubmitScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	var form submitScanForm
	if err := c.ShouldBind(&form); err != nil {
		if isTooLarge(err) {
			c.Error(h.tooLarge())
			return
		}
		c.Error(apperror.Validation(firstValidationError(err), err))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.Error(h.tooLarge())
			return
		}
		c.Error(apperror.BadRequest("No file provided"))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		c.Error(h.tooLarge())
		return
	}

	path, err := h.storeUpload(fileHeader)
	if err != nil {
		c.Error(apperror.IO("Failed to store uploaded file", err))
		return
	}

	req := domain.SubmitRequest{
		FilePath:         path,
		OriginalFileName: fileHeader.Filename,
		DeclaredMimeType: fileHeader.Header.Get("Content-Type"),
		SizeBytes:        uint64(fileHeader.Size),
		RemoveOnComplete: true,
	}

	if form.Mode == "async" {
		status, err := h.scanUC.SubmitAsync(c.Request.Context(), req)
		if err != nil {
			c.Error(err)
			return
		}
		response.Success(c, http.StatusAccepted, "Scan accepted", status)
		return
	}

	record, err := h.scanUC.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, c.Request.Context().Err()) && c.Request.Context().Err() != nil {
			// Client went away; nobody is left to answer.
			c.Abort()
			return
		}
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Scan completed", record)
}

// GetResult godoc
// @Summary      Get Scan Result
// @Description  Returns the completed scan record.
// @Tags         scans
// @Produce      json
// @Param        id   path      string  true  "Scan ID"
// @Success      200  {object}  response.Response{data=domain.ScanRecord}
// @Failure      404  {object}  response.Response
// @Router       /scans/{id} [get]
func (h *ScanHandler) GetResult(c *gin.Context) {
	var uri scanURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.Error(apperror.NotFound("Scan result not found"))
		return
	}

	record, err := h.scanUC.GetResult(c.Request.Context(), uri.ID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Scan result retrieved", record)
}

// GetStatus godoc
// @Summary      Get Scan Status
// @Description  Returns the progress of a scan.
// @Tags         scans
// @Produce      json
// @Param        id   path      string  true  "Scan ID"
// @Success      200  {object}  response.Response{data=domain.ScanStatus}
// @Failure      404  {object}  response.Response
// @Router       /scans/{id}/status [get]
func (h *ScanHandler) GetStatus(c *gin.Context) {
	var uri scanURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.Error(apperror.NotFound("Scan not found"))
		return
	}

	status, err := h.scanUC.GetStatus(c.Request.Context(), uri.ID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Scan status retrieved", status)
}

// ListHistory godoc
// @Summary      List Scan History
// @Description  Returns completed scans, newest first.
// @Tags         scans
// @Produce      json
// @Param        limit  query     int  false  "Maximum items (default 20, max 100)"
// @Success      200    {object}  response.Response{data=[]domain.ScanHistoryItem}
// @Failure      422    {object}  response.Response
// @Router       /scans/history [get]
func (h *ScanHandler) ListHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(apperror.Validation(firstValidationError(err), err))
		return
	}

	items, err := h.scanUC.ListHistory(c.Request.Context(), q.Limit)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Scan history retrieved", items)
}

func (h *ScanHandler) storeUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.uploadDir, "scan-*.upload")
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (h *ScanHandler) tooLarge() *apperror.AppError {
	return apperror.PayloadTooLarge(fmt.Sprintf("File exceeds the maximum upload size of %d bytes", h.maxUploadBytes))
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return true
	}
	// mime/multipart does not always wrap the reader error
	return strings.Contains(err.Error(), "request body too large")
}

func firstValidationError(err error) string {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return "Invalid number: " + numErr.Num
	}
	if msgs := validation.FormatValidationErrors(err); len(msgs) > 0 {
		return msgs[0]
	}
	return "Invalid request"
}
