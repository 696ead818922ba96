package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// errNoMatch marks a well-formed provider answer that carries no location.
var errNoMatch = errors.New("provider returned no location")

// Provider looks up one IP address at one geolocation service.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, client *http.Client, ip string) (Location, error)
}

// getJSON fetches url and decodes a JSON body into dst. Non-2xx statuses are
// errors.
func getJSON(ctx context.Context, client *http.Client, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// --- ip-api.com ---

// IPAPI queries ip-api.com, which reports failures in a "status" field.
type IPAPI struct{ BaseURL string }

func (IPAPI) Name() string { return "ip-api" }

func (p IPAPI) Lookup(ctx context.Context, client *http.Client, ip string) (Location, error) {
	var body struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
		Country     string `json:"country"`
		RegionName  string `json:"regionName"`
		City        string `json:"city"`
	}
	u := strings.TrimRight(p.BaseURL, "/") + "/json/" + url.PathEscape(ip) +
		"?fields=status,countryCode,country,regionName,city"
	if err := getJSON(ctx, client, u, &body); err != nil {
		return Location{}, err
	}
	if body.Status != "success" || body.CountryCode == "" {
		return Location{}, errNoMatch
	}
	return Location{
		CountryCode: body.CountryCode,
		CountryName: body.Country,
		Region:      body.RegionName,
		City:        body.City,
	}, nil
}

// --- ipapi.co ---

// IPAPICo queries ipapi.co.
type IPAPICo struct{ BaseURL string }

func (IPAPICo) Name() string { return "ipapi.co" }

func (p IPAPICo) Lookup(ctx context.Context, client *http.Client, ip string) (Location, error) {
	var body struct {
		CountryCode string `json:"country_code"`
		CountryName string `json:"country_name"`
		Region      string `json:"region"`
		City        string `json:"city"`
	}
	u := strings.TrimRight(p.BaseURL, "/") + "/" + url.PathEscape(ip) + "/json/"
	if err := getJSON(ctx, client, u, &body); err != nil {
		return Location{}, err
	}
	if body.CountryCode == "" {
		return Location{}, errNoMatch
	}
	return Location{
		CountryCode: body.CountryCode,
		CountryName: body.CountryName,
		Region:      body.Region,
		City:        body.City,
	}, nil
}

// --- ipinfo.io ---

// IPInfo queries ipinfo.io. Its "country" field is the ISO code.
type IPInfo struct{ BaseURL string }

func (IPInfo) Name() string { return "ipinfo" }

func (p IPInfo) Lookup(ctx context.Context, client *http.Client, ip string) (Location, error) {
	var body struct {
		Country     string `json:"country"`
		CountryName string `json:"country_name"`
		Region      string `json:"region"`
		City        string `json:"city"`
	}
	u := strings.TrimRight(p.BaseURL, "/") + "/" + url.PathEscape(ip) + "/json"
	if err := getJSON(ctx, client, u, &body); err != nil {
		return Location{}, err
	}
	if body.Country == "" {
		return Location{}, errNoMatch
	}
	return Location{
		CountryCode: body.Country,
		CountryName: body.CountryName,
		Region:      body.Region,
		City:        body.City,
	}, nil
}

// --- public address discovery ---

// PublicIPSource reports the public address this server egresses from.
// Used when the client address is loopback or private, as in local
// development behind no proxy.
type PublicIPSource interface {
	Name() string
	PublicIP(ctx context.Context, client *http.Client) (string, error)
}

// Ipify queries api.ipify.org.
type Ipify struct{ BaseURL string }

func (Ipify) Name() string { return "ipify" }

func (s Ipify) PublicIP(ctx context.Context, client *http.Client) (string, error) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := getJSON(ctx, client, strings.TrimRight(s.BaseURL, "/")+"/?format=json", &body); err != nil {
		return "", err
	}
	if body.IP == "" {
		return "", errNoMatch
	}
	return body.IP, nil
}

// HTTPBin queries httpbin.org/ip. "origin" may list several comma-separated
// hops; the first is the caller.
type HTTPBin struct{ BaseURL string }

func (HTTPBin) Name() string { return "httpbin" }

func (s HTTPBin) PublicIP(ctx context.Context, client *http.Client) (string, error) {
	var body struct {
		Origin string `json:"origin"`
	}
	if err := getJSON(ctx, client, strings.TrimRight(s.BaseURL, "/")+"/ip", &body); err != nil {
		return "", err
	}
	origin := strings.TrimSpace(strings.Split(body.Origin, ",")[0])
	if origin == "" {
		return "", errNoMatch
	}
	return origin, nil
}
