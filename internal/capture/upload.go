package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUpload marks photo upload failures, distinct from the API error
// taxonomy because the upload endpoint is a separate unauthenticated service.
var ErrUpload = errors.New("could not upload image")

// Uploader posts photos to the fixed upload endpoint as a multipart form and
// returns the remote URL assigned to the file.
type Uploader struct {
	client *http.Client
	url    string
}

// NewUploader creates an uploader with a bounded per-request timeout.
func NewUploader(url string, timeout time.Duration) *Uploader {
	return &Uploader{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Upload sends the file under the "files" form field, inferring the content
// type from the file extension. The endpoint responds with a JSON array of
// URLs; the first element is the uploaded photo.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	defer file.Close()

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "jpg"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="photo.%s"`, ext))
	header.Set("Content-Type", "image/"+ext)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrUpload, resp.StatusCode)
	}

	var urls []string
	if err := json.NewDecoder(resp.Body).Decode(&urls); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUpload)
	}
	return urls[0], nil
}
