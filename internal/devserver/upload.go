package devserver

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20

// handleUpload accepts a multipart form with a "files" field, stores each
// photo under the upload dir and answers with a JSON array of URLs, matching
// the production upload service's contract.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse upload form data.")
		return
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided.")
		return
	}

	base := s.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}

	var urls []string
	for _, fileHeader := range r.MultipartForm.File["files"] {
		name, err := s.savePhoto(fileHeader)
		if err != nil {
			s.log.Errorf("save upload: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to save file.")
			return
		}
		urls = append(urls, base+"/uploads/"+name)
	}

	writeJSON(w, http.StatusOK, urls)
}

func (s *Server) savePhoto(fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	original := fileHeader.Filename

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	if !strings.HasPrefix(http.DetectContentType(buffer[:n]), "image/") {
		return "", fmt.Errorf("not an image: %s", original)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	ext := strings.TrimPrefix(filepath.Ext(original), ".")
	if ext == "" {
		ext = "jpg"
	}
	name := fmt.Sprintf("photo_%s.%s", uuid.New().String(), ext)

	if err := os.MkdirAll(s.uploadDir, 0700); err != nil {
		return "", err
	}
	dest, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		return "", err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		return "", err
	}
	return name, nil
}
