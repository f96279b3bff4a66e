package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const maxMediaBytes = 25 << 20

// DownloadMedia resolves a Cloud API media ID to a local file under the
// configured media directory. Images are downscaled so vision prompts stay
// cheap regardless of what the customer's camera produced.
func (c *Channel) DownloadMedia(ctx context.Context, mediaID string) (string, error) {
	url, mimeType, err := c.resolveMediaURL(ctx, mediaID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download media %s: status %d", mediaID, resp.StatusCode)
	}

	if err := os.MkdirAll(c.config.MediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(c.config.MediaDir, mediaID+extForMime(mimeType))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	_, err = io.Copy(f, io.LimitReader(resp.Body, maxMediaBytes))
	f.Close()
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write media file: %w", err)
	}

	if strings.HasPrefix(mimeType, "image/") {
		if err := c.downscaleImage(path); err != nil {
			c.logger.Warn("image downscale failed, using original", "media", mediaID, "error", err)
		}
	}
	return path, nil
}

// resolveMediaURL asks the Graph API for the short-lived download URL of a
// media object.
func (c *Channel) resolveMediaURL(ctx context.Context, mediaID string) (url, mimeType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.GraphAPIBase+"/"+mediaID, nil)
	if err != nil {
		return "", "", fmt.Errorf("build media lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("media lookup %s: %w", mediaID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", "", fmt.Errorf("media lookup %s: status %d: %s", mediaID, resp.StatusCode, string(body))
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", "", fmt.Errorf("decode media lookup: %w", err)
	}
	if meta.URL == "" {
		return "", "", fmt.Errorf("media %s has no download url", mediaID)
	}
	return meta.URL, meta.MimeType, nil
}

// downscaleImage rewrites path with the image fitted inside the configured
// bounding box. No-op when the image is already small enough.
func (c *Channel) downscaleImage(path string) error {
	maxDim := c.config.MaxImageDimension
	if maxDim <= 0 {
		maxDim = 1024
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return nil
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	return imaging.Save(resized, path)
}

func extForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/png"):
		return ".png"
	case strings.HasPrefix(mimeType, "image/"):
		return ".jpg"
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(mimeType, "audio/"):
		return ".oga"
	}
	return ""
}
