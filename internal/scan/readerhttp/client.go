// Package readerhttp is the HTTP client for the credential-reader
// bridge daemon. The bridge owns the hardware protocol; this client only
// speaks its small JSON API: a long-polling begin call and a best-effort
// cancel.
package readerhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/scan"
)

// Client talks to one reader bridge on behalf of one terminal.
type Client struct {
	base     string
	terminal string
	http     *http.Client
}

// New constructs a bridge client. caPath pins the bridge's CA; insecure
// skips verification (dev only). The underlying http.Client carries no
// timeout: Begin long-polls and is bounded by its context.
func New(base, terminal, caPath string, insecure bool) (*Client, error) {
	tlsConf, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:     strings.TrimRight(base, "/"),
		terminal: terminal,
		http:     &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConf}},
	}, nil
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev knob
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

var _ scan.Reader = (*Client)(nil)

type beginRequest struct {
	Session  string `json:"session"`
	Terminal string `json:"terminal"`
}

type beginResponse struct {
	ResolvedName string `json:"resolved_name"`
	Assertion    string `json:"assertion"`
}

// Begin registers the session with the bridge and blocks until a
// credential is presented or ctx ends.
func (c *Client) Begin(ctx context.Context, session scan.SessionID) (scan.Assertion, error) {
	body, err := json.Marshal(beginRequest{Session: string(session), Terminal: c.terminal})
	if err != nil {
		return scan.Assertion{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/scan", bytes.NewReader(body))
	if err != nil {
		return scan.Assertion{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return scan.Assertion{}, ctx.Err()
		}
		return scan.Assertion{}, fmt.Errorf("%w: %v", errs.ErrReader, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return scan.Assertion{}, errs.ErrScanTimeout
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return scan.Assertion{}, fmt.Errorf("%w: bridge status %d: %s", errs.ErrReader, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out beginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return scan.Assertion{}, fmt.Errorf("%w: bad bridge response: %v", errs.ErrReader, err)
	}
	if out.ResolvedName == "" || out.Assertion == "" {
		return scan.Assertion{}, fmt.Errorf("%w: empty bridge response", errs.ErrReader)
	}
	return scan.Assertion{Session: session, ResolvedName: out.ResolvedName, Token: out.Assertion}, nil
}

// Cancel voids the session on the bridge. A 404 means the bridge never
// saw (or already dropped) the session, which is fine.
func (c *Client) Cancel(ctx context.Context, session scan.SessionID) error {
	url := fmt.Sprintf("%s/v1/scan/%s/cancel", c.base, session)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrReader, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: cancel status %d", errs.ErrReader, resp.StatusCode)
	}
	return nil
}
