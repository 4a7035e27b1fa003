package handler

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/organizer"
	"golang.org/x/image/draw"
)

const (
	minThumbnailWidth = 16
	maxThumbnailWidth = 1024
)

// ImageHandler serves renamed images and their thumbnails.
type ImageHandler struct {
	dir string
}

// NewImageHandler creates a handler serving files from dir.
func NewImageHandler(dir string) *ImageHandler {
	return &ImageHandler{dir: dir}
}

// Serve handles GET /images/:name. With ?w=N it returns a JPEG scaled to
// width N (clamped to 16..1024), preserving aspect ratio.
func (h *ImageHandler) Serve(c *gin.Context) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !organizer.IsJPEG(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image name"})
		return
	}

	path := filepath.Join(h.dir, name)
	if !organizer.Exists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	w := c.Query("w")
	if w == "" {
		c.Header("Cache-Control", "public, max-age=3600")
		c.File(path)
		return
	}

	width, err := strconv.Atoi(w)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "w must be an integer"})
		return
	}

	data, err := Thumbnail(path, clampWidth(width))
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "Failed to build thumbnail: image=%s, error=%v", name, err)
		c.File(path)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/jpeg", data)
}

func clampWidth(w int) int {
	if w < minThumbnailWidth {
		return minThumbnailWidth
	}
	if w > maxThumbnailWidth {
		return maxThumbnailWidth
	}
	return w
}

// Thumbnail decodes the image at path and re-encodes it as JPEG at width,
// never upscaling.
func Thumbnail(path string, width int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return scaleJPEG(src, width)
}

var errEmptyImage = errors.New("image has no pixels")

func scaleJPEG(src image.Image, width int) ([]byte, error) {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errEmptyImage
	}
	if width < 1 {
		width = 1
	}
	if width > b.Dx() {
		width = b.Dx()
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
