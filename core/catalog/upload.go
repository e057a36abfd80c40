package catalog

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// buildUploadBody assembles the multipart form for /api/upload. The
// audio part is buffered in memory; uploads are single files, not bulk.
func buildUploadBody(title, artist string, audio io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("title", title); err != nil {
		return nil, "", fmt.Errorf("writing title field: %w", err)
	}
	if err := w.WriteField("artist", artist); err != nil {
		return nil, "", fmt.Errorf("writing artist field: %w", err)
	}

	part, err := w.CreateFormFile("audio", "upload.audio")
	if err != nil {
		return nil, "", fmt.Errorf("creating audio part: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", fmt.Errorf("buffering audio: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finishing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
