// Package fetch implements the HTTP(S) client used to retrieve distribution
// index files and package artifacts: redirect-following GETs over the
// system TLS trust store, with optional SOCKS5/HTTPS proxying read from the
// environment.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/reproenv/repro-env/internal/reproerr"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultReadTimeout    = 300 * time.Second
)

// Client issues GET requests for distribution index and package files.
type Client struct {
	http *http.Client
}

// NewClient builds a Client honoring ALL_PROXY/HTTPS_PROXY (including
// socks5:// schemes) from the environment.
func NewClient() (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: defaultConnectTimeout,
		}).DialContext,
	}

	if dialer, err := socks5DialerFromEnv(); err != nil {
		return nil, err
	} else if dialer != nil {
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   defaultReadTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}, nil
}

// socks5DialerFromEnv returns a SOCKS5 dialer when ALL_PROXY (or
// all_proxy) names a socks5:// endpoint, nil otherwise.
func socks5DialerFromEnv() (proxy.Dialer, error) {
	raw := os.Getenv("ALL_PROXY")
	if raw == "" {
		raw = os.Getenv("all_proxy")
	}
	if raw == "" || !strings.HasPrefix(raw, "socks5://") {
		return nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, "failed to parse ALL_PROXY as url", err)
	}

	var auth *proxy.Auth
	if u.User != nil {
		auth = &proxy.Auth{User: u.User.Username()}
		if pw, ok := u.User.Password(); ok {
			auth.Password = pw
		}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindNetwork, "failed to construct socks5 dialer", err)
	}
	return dialer, nil
}

// Get issues a GET request and returns the response body as a stream. The
// caller must Close it. Non-2xx responses are surfaced as Network-kind
// errors whose message carries the status code.
func (c *Client) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindParse, fmt.Sprintf("invalid url %q", rawURL), err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindNetwork, fmt.Sprintf("request to %q failed", rawURL), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, reproerr.New(reproerr.KindNetwork, fmt.Sprintf("unexpected status %d fetching %q", resp.StatusCode, rawURL))
	}

	return resp.Body, nil
}

// GetBytes drains Get into memory; intended for small, trusted metadata
// files (InRelease, repository config) rather than package artifacts.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindNetwork, fmt.Sprintf("failed to read body of %q", rawURL), err)
	}
	return data, nil
}
