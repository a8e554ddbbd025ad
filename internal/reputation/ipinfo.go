package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

// DefaultIPInfoURL is the public ipinfo endpoint.
const DefaultIPInfoURL = "https://ipinfo.io"

// IPInfo flags addresses that ipinfo's privacy data marks as VPN, proxy or hosting.
type IPInfo struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewIPInfo creates an ipinfo checker with the public endpoint.
func NewIPInfo(token string) *IPInfo {
	return &IPInfo{
		BaseURL: DefaultIPInfoURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type ipinfoResponse struct {
	Privacy *struct {
		VPN     bool `json:"vpn"`
		Proxy   bool `json:"proxy"`
		Hosting bool `json:"hosting"`
	} `json:"privacy"`
}

// Check implements Checker.
func (c *IPInfo) Check(ctx context.Context, addr string) (bool, error) {
	u := fmt.Sprintf("%s/%s?token=%s", c.BaseURL, url.PathEscape(addr), url.QueryEscape(c.Token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeReputationFailed, "build ipinfo request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeReputationFailed, "ipinfo request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, apperrors.Newf(apperrors.CodeReputationFailed, "ipinfo status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeReputationFailed, "decode ipinfo response")
	}
	if body.Privacy == nil {
		return false, nil
	}
	return body.Privacy.VPN || body.Privacy.Proxy || body.Privacy.Hosting, nil
}
