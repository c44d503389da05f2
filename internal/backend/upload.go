package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"argus/internal/logging"
	"argus/internal/session"
)

// Upload sends the file at path as multipart field "file" and returns the
// server-issued handle. The file is streamed, not buffered.
func (c *Client) Upload(ctx context.Context, path string) (session.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return session.Attachment{}, fmt.Errorf("upload: %w", err)
	}
	defer f.Close()
	return c.UploadReader(ctx, filepath.Base(path), f)
}

// UploadReader uploads r under filename.
func (c *Client) UploadReader(ctx context.Context, filename string, r io.Reader) (session.Attachment, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	// Unblocks the writer goroutine if the server answers before reading it all.
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", pr, "")
	if err != nil {
		return session.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	log := logging.WithRequestID(logging.CategoryUpload, req.Header.Get("X-Request-ID")).WithField("filename", filename)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("upload failed: %v", err)
		return session.Attachment{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		log.Error("upload rejected: %v", err)
		return session.Attachment{}, fmt.Errorf("upload: %w", err)
	}

	var att session.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return session.Attachment{}, fmt.Errorf("upload: failed to decode response: %w", err)
	}
	if att.Path == "" {
		return session.Attachment{}, fmt.Errorf("upload: response has no path")
	}
	if att.Filename == "" {
		att.Filename = filename
	}
	log.Info("uploaded as %s", att.Path)
	return att, nil
}
