package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const nominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim reverse-geocodes coordinates through the OpenStreetMap Nominatim
// API.
type Nominatim struct {
	client  *http.Client
	baseURL string
}

// NewNominatim creates a geocoder against the public Nominatim instance.
func NewNominatim() *Nominatim {
	return &Nominatim{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: nominatimURL,
	}
}

// NewNominatimWithBase creates a geocoder against a custom instance. Tests
// point this at an httptest server.
func NewNominatimWithBase(baseURL string) *Nominatim {
	n := NewNominatim()
	n.baseURL = baseURL
	return n
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Country     string `json:"country"`
	} `json:"address"`
}

// Reverse resolves coordinates to an address.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	// Nominatim's usage policy requires an identifying agent.
	req.Header.Set("User-Agent", "hti6-mobile/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var data nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("reverse geocode: decode response: %w", err)
	}

	street := data.Address.Road
	if data.Address.HouseNumber != "" {
		street += " " + data.Address.HouseNumber
	}
	city := data.Address.City
	if city == "" {
		city = data.Address.Town
	}
	if city == "" {
		city = data.Address.Village
	}

	return &Address{
		Street:    street,
		City:      city,
		Region:    data.Address.State,
		Country:   data.Address.Country,
		Formatted: data.DisplayName,
	}, nil
}
