package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/models"
)

// MediaPrefix is the URL prefix uploaded files are served under.
const MediaPrefix = "/uploads"

// MediaHandler stores uploaded attachments on local disk.
type MediaHandler struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

func NewMediaHandler(dir string, maxBytes int64, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{dir: dir, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /media with a multipart "file" field. The content is
// sniffed, so the client's declared type is ignored.
func (h *MediaHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer src.Close()

	detected, err := mimetype.DetectReader(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	mediaType, ok := classify(detected)
	if !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported media type " + detected.String()})
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	name := uuid.NewString() + detected.Extension()
	if err := h.store(name, src); err != nil {
		h.logger.Error("store upload", zap.String("name", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"media_url":  MediaPrefix + "/" + name,
		"media_type": mediaType,
	})
}

func classify(detected *mimetype.MIME) (models.MediaType, bool) {
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return models.MediaImage, true
		case strings.HasPrefix(m.String(), "video/"):
			return models.MediaVideo, true
		}
	}
	return "", false
}

func (h *MediaHandler) store(name string, src io.Reader) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
