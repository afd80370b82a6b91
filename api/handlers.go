package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	watermark "github.com/gcslaoli/pdf-watermark-remover-go"
)

// HandleRemoveWatermark accepts a multipart upload with a "pdf" file and an
// optional "skip" field and responds with the cleaned PDF.
func HandleRemoveWatermark(c *gin.Context, config *Config) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxFileSize+1<<20)

	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	if header.Size > config.MaxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file size %d exceeds maximum allowed %d bytes", header.Size, config.MaxFileSize),
		})
		return
	}
	if err := validatePDFFile(file); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := config.Settings
	if skipParam := c.PostForm("skip"); skipParam != "" {
		skip, err := strconv.Atoi(skipParam)
		if err != nil || skip < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "skip must be a non-negative integer"})
			return
		}
		settings.Skip = skip
	}

	if err := os.MkdirAll(config.TempDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp directory"})
		return
	}
	workDir, err := os.MkdirTemp(config.TempDir, "request-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp directory"})
		return
	}
	defer os.RemoveAll(workDir)

	inFile := filepath.Join(workDir, "input.pdf")
	outFile := filepath.Join(workDir, "output.pdf")
	if err := saveUpload(file, inFile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	opts := settings.Options(inFile, outFile)
	if opts.StagingDir == "" {
		opts.StagingDir = workDir
	}
	opts.Logger = &config.Logger

	report, err := watermark.Run(c.Request.Context(), opts)
	if err != nil {
		var mpe *watermark.MalformedPageError
		if errors.As(err, &mpe) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "page": mpe.Page})
			return
		}
		config.Logger.Error().Err(err).Msg("remove watermark")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Watermark removal failed"})
		return
	}

	c.Header("X-Pages-Written", strconv.Itoa(report.Written))
	c.Header("X-Pages-Skipped", strconv.Itoa(len(report.Skipped)))
	c.FileAttachment(outFile, outputName(header.Filename))
}

func saveUpload(file multipart.File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// outputName derives the download name from the uploaded file name.
func outputName(uploaded string) string {
	name := sanitizeFilename(uploaded)
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = name[:len(name)-4]
	}
	return name + "_unwatermarked.pdf"
}

// sanitizeFilename removes path traversal attempts and dangerous characters
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.TrimSpace(filepath.Base(filename))
	if filename == "" || filename == "." {
		filename = "document.pdf"
	}
	return filename
}

// validatePDFFile checks the PDF header and rewinds the file.
func validatePDFFile(file multipart.File) error {
	buffer := make([]byte, 5)
	n, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read file header: %v", err)
	}
	if n < 5 || string(buffer) != "%PDF-" {
		return errors.New("invalid PDF file: header does not match")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset file position: %v", err)
	}
	return nil
}
