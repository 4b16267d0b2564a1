package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pacer"
)

// Session is one live HTTP identity: a cookie jar plus the header set
// chosen for it. Sessions are rebuilt (new jar, new headers) whenever a
// fetch attempt fails. They are not shared across workers.
type Session struct {
	client  *http.Client
	headers http.Header
}

// Client issues GETs with rotating headers and unbounded retry. Bytes
// of every successful response are accounted into the metrics
// collector, attributed to the calling worker.
type Client struct {
	cfg      config.HTTPConfig
	metrics  *monitoring.Collector
	pacer    *pacer.Pacer
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	secure   *http.Transport
	insecure *http.Transport
	randIntN func(n int) int
}

// Options overrides Client collaborators in tests.
type Options struct {
	RandIntN func(n int) int
}

// NewClient builds a fetch client from config.
func NewClient(cfg config.HTTPConfig, metrics *monitoring.Collector, pc *pacer.Pacer, opts ...Options) *Client {
	c := &Client{
		cfg:      cfg,
		metrics:  metrics,
		pacer:    pc,
		limiters: make(map[string]*rate.Limiter),
		secure: &http.Transport{
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
		},
		insecure: &http.Transport{
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
			// Upstream serves a broken certificate chain; verification
			// is disabled only for the configured hosts.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
		randIntN: rand.IntN,
	}
	if len(opts) > 0 && opts[0].RandIntN != nil {
		c.randIntN = opts[0].RandIntN
	}
	return c
}

func (c *Client) timeout() time.Duration {
	if c.cfg.TimeoutSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.cfg.TimeoutSecs) * time.Second
}

func (c *Client) pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[c.randIntN(len(list))]
}

// NewSession builds a fresh session with a new cookie jar and a header
// set drawn uniformly from the configured lists.
func (c *Client) NewSession() *Session {
	jar, _ := cookiejar.New(nil)

	headers := http.Header{}
	if ua := c.pick(c.cfg.UserAgents); ua != "" {
		headers.Set("User-Agent", ua)
	}
	if ref := c.pick(c.cfg.Referers); ref != "" {
		headers.Set("Referer", ref)
	}
	if lang := c.pick(c.cfg.Languages); lang != "" {
		headers.Set("Accept-Language", lang)
	}

	return &Session{
		client: &http.Client{
			Jar:       jar,
			Timeout:   c.timeout(),
			Transport: c.transportFor(),
		},
		headers: headers,
	}
}

// transportFor wraps both transports behind a host switch so a single
// session can talk to verified and deny-listed hosts alike.
func (c *Client) transportFor() http.RoundTripper {
	deny := make(map[string]bool, len(c.cfg.InsecureHosts))
	for _, h := range c.cfg.InsecureHosts {
		deny[h] = true
	}
	return &hostSwitchTransport{secure: c.secure, insecure: c.insecure, deny: deny}
}

type hostSwitchTransport struct {
	secure   http.RoundTripper
	insecure http.RoundTripper
	deny     map[string]bool
}

func (t *hostSwitchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.deny[req.URL.Hostname()] {
		return t.insecure.RoundTrip(req)
	}
	return t.secure.RoundTrip(req)
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(20, 20)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[u.Host]; ok {
		return lim
	}
	lim := rate.NewLimiter(20, 20)
	c.limiters[u.Host] = lim
	return lim
}

// Fetch GETs the URL, retrying without bound on transport errors and
// non-200 statuses. Each retry rotates the session. The returned
// session is whichever one finally succeeded.
func (c *Client) Fetch(ctx context.Context, sess *Session, rawURL, workerID string) ([]byte, *Session, error) {
	return c.FetchWithLimit(ctx, sess, rawURL, workerID, 0)
}

// FetchWithLimit is Fetch with an optional attempt bound; maxAttempts
// of zero retries forever. Call sites that want to time-box use it.
func (c *Client) FetchWithLimit(ctx context.Context, sess *Session, rawURL, workerID string, maxAttempts int) ([]byte, *Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, sess, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, sess, eris.Errorf("fetch: unsupported scheme %q in %s", u.Scheme, rawURL)
	}

	if sess == nil {
		sess = c.NewSession()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, sess, eris.Wrap(err, "fetch: context done")
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, sess, eris.Wrapf(lastErr, "fetch: %d attempts exhausted for %s", maxAttempts, rawURL)
		}
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.RecordFailure()
			}
			if c.pacer != nil {
				c.pacer.Pace(ctx, c.timeout())
			}
			sess = c.NewSession()
		}

		if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
			return nil, sess, eris.Wrap(err, "fetch: rate limiter wait")
		}

		body, err := c.attempt(ctx, sess, rawURL)
		if err != nil {
			lastErr = err
			zap.L().Warn("fetch: attempt failed, rotating session",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if c.metrics != nil {
			c.metrics.RecordNetworkBytes(uint64(len(body)), workerID)
		}
		return body, sess, nil
	}
}

func (c *Client) attempt(ctx context.Context, sess *Session, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	for k, vs := range sess.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := sess.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}
	return body, nil
}

// Probe checks reachability of the configured probe URL with a short
// deadline. It never retries; startup uses it to fail fast when the
// network is down.
func (c *Client) Probe(ctx context.Context) bool {
	if c.cfg.ProbeURL == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: 5 * time.Second, Transport: c.secure}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}
