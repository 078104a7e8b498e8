package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/verdict/errors"
)

// Options configures a Client
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int     // defaults to 1 when rate limited
	BlockPrivateIP    bool    // refuse loopback/private targets, including after DNS resolution
	MaxRedirects      int     // default 10
}

// Client is an http.Client with a client-side rate limit and redirect/target checks
type Client struct {
	*http.Client
	limiter        *rate.Limiter
	blockPrivateIP bool
	maxRedirects   int
}

// New creates a Client
func New(opts Options) *Client {
	hc := &http.Client{Timeout: opts.Timeout}

	if opts.BlockPrivateIP {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		hc.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return Wrap(hc, opts)
}

// Wrap applies the rate limit and redirect policy to an existing http.Client.
// The client's transport is used as is, which lets tests point at httptest servers.
func Wrap(hc *http.Client, opts Options) *Client {
	c := &Client{
		Client:         hc,
		blockPrivateIP: opts.BlockPrivateIP,
		maxRedirects:   opts.MaxRedirects,
	}
	if c.maxRedirects <= 0 {
		c.maxRedirects = 10
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}
	return c
}

// Do waits for the rate limiter, validates the target and sends the request
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}
	return c.Client.Do(req)
}

func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed", scheme)
	}
	if u.User != nil {
		return errors.New("URL carries user info")
	}
	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
