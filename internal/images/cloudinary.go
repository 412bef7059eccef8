package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Cloudinary uploads through Cloudinary's unsigned upload endpoint.
type Cloudinary struct {
	CloudName    string
	UploadPreset string
	Client       *http.Client
}

func NewCloudinary(cloudName, uploadPreset string) *Cloudinary {
	return &Cloudinary{
		CloudName:    cloudName,
		UploadPreset: uploadPreset,
		Client:       &http.Client{Timeout: 15 * time.Second},
	}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
}

func (c *Cloudinary) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("upload_preset", c.UploadPreset); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("cloudinary upload: status %d", resp.StatusCode)
	}
	var out cloudinaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload: empty url in response")
	}
	return out.SecureURL, nil
}
