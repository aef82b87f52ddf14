package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/middleware"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/respond"
	"github.com/dmitrijs2005/fleetzen/internal/server/services"
)

// MaxPhotosPerUpload bounds the number of file parts in one request.
const MaxPhotosPerUpload = 20

type PhotoUploader interface {
	Upload(ctx context.Context, in services.PhotoUpload) ([]api.Photo, error)
}

type PhotoHandler struct {
	Svc      PhotoUploader
	MaxBytes int64
}

func NewPhotoHandler(svc PhotoUploader, maxBytes int64) *PhotoHandler {
	return &PhotoHandler{Svc: svc, MaxBytes: maxBytes}
}

func (h *PhotoHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/interventions/photos", h.upload)
}

func (h *PhotoHandler) upload(c *gin.Context) {
	// room for every part at the limit plus form fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBytes*MaxPhotosPerUpload+(1<<20))

	form, err := c.MultipartForm()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_form", "expected multipart/form-data", nil)
		return
	}

	in := services.PhotoUpload{
		AgentID:        middleware.AgentIDFromContext(c),
		InterventionID: strings.TrimSpace(c.PostForm("interventionId")),
		PhotoType:      strings.TrimSpace(c.PostForm("photoType")),
	}
	if in.InterventionID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "interventionId is required", nil)
		return
	}
	if caption := strings.TrimSpace(c.PostForm("caption")); caption != "" {
		in.Caption = &caption
	}
	if in.Latitude, err = optionalFloat(c.PostForm("latitude"), -90, 90); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "latitude: "+err.Error(), nil)
		return
	}
	if in.Longitude, err = optionalFloat(c.PostForm("longitude"), -180, 180); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "longitude: "+err.Error(), nil)
		return
	}

	files := form.File["photos"]
	if len(files) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one photo is required", nil)
		return
	}
	if len(files) > MaxPhotosPerUpload {
		respond.Error(c, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("at most %d photos per upload", MaxPhotosPerUpload), nil)
		return
	}

	for _, fh := range files {
		if h.MaxBytes > 0 && fh.Size > h.MaxBytes {
			respond.FromError(c, fmt.Errorf("%w: %s exceeds %d bytes", common.ErrPayloadTooLarge, fh.Filename, h.MaxBytes))
			return
		}
		data, err := readPart(fh)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_form", "cannot read "+fh.Filename, nil)
			return
		}
		in.Files = append(in.Files, services.UploadedFile{FileName: fh.Filename, Data: data})
	}

	photos, err := h.Svc.Upload(c.Request.Context(), in)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, api.PhotosResponse{Success: true, Data: photos})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func optionalFloat(s string, lo, hi float64) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New("not a number")
	}
	if v < lo || v > hi {
		return nil, errors.New("out of range")
	}
	return &v, nil
}
