// Package geo turns shared coordinates into street addresses via the
// Nominatim reverse-geocoding API.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Geocoder resolves coordinates to addresses.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Nominatim is a Geocoder backed by a Nominatim instance. The public OSM
// instance allows at most one request per second, enforced here so a burst
// of shared locations cannot get the bot banned.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewNominatim(baseURL, userAgent string, logger *slog.Logger) *Nominatim {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "pedidobot/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Nominatim{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		logger:    logger,
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		Suburb      string `json:"suburb"`
		City        string `json:"city"`
		Town        string `json:"town"`
	} `json:"address"`
}

// ReverseGeocode returns a short human address for the coordinates.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("accept-language", "es")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("geo: build request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo: reverse geocode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("geo: nominatim returned %d: %s", resp.StatusCode, string(body))
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("geo: decode response: %w", err)
	}
	return formatAddress(result), nil
}

func formatAddress(r nominatimResponse) string {
	street := r.Address.Road
	if street != "" && r.Address.HouseNumber != "" {
		street += " " + r.Address.HouseNumber
	}
	locality := r.Address.City
	if locality == "" {
		locality = r.Address.Town
	}
	if locality == "" {
		locality = r.Address.Suburb
	}

	switch {
	case street != "" && locality != "":
		return street + ", " + locality
	case street != "":
		return street
	case r.DisplayName != "":
		return r.DisplayName
	}
	return ""
}

// FallbackLabel renders raw coordinates for when geocoding fails; the
// vendor still gets something they can open in a map.
func FallbackLabel(lat, lon float64) string {
	return fmt.Sprintf("ubicación %.6f, %.6f", lat, lon)
}
