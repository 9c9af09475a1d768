package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20 // 10 MiB

var allowedExtensions = map[string]struct{}{
	".jpeg": {}, ".jpg": {}, ".png": {}, ".gif": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".txt": {},
	".mp4": {}, ".mp3": {}, ".wav": {},
}

var allowedMimeTypes = []string{
	"image/jpeg", "image/png", "image/gif",
	"application/pdf", "application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain", "video/mp4", "audio/mpeg", "audio/mp3", "audio/wav",
}

// UploadHandler stores uploaded files under a uuid name and returns the
// URL a file-type message carries as content.
type UploadHandler struct {
	log *slog.Logger
	dir string
}

// NewUploadHandler builds an UploadHandler writing into dir.
func NewUploadHandler(log *slog.Logger, dir string) *UploadHandler {
	return &UploadHandler{log: log, dir: dir}
}

// Upload accepts one multipart file, checks extension and sniffed content
// type against the whitelist, and persists it.
func (h *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if header.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file type"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	defer file.Close()

	// Sniff the actual content, not just the extension.
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if !mimeAllowed(mtype) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file type"})
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(h.dir, name)
	out, err := os.Create(dst)
	if err != nil {
		h.log.Error("upload create failed", "path", dst, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		h.log.Error("upload write failed", "path", dst, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename":     name,
		"originalName": header.Filename,
		"size":         header.Size,
		"mimetype":     mtype.String(),
		"url":          "/uploads/" + name,
	})
}

func mimeAllowed(mtype *mimetype.MIME) bool {
	for _, allowed := range allowedMimeTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}
