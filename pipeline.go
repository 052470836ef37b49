package go_bridgeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// AuthProvider is the narrow contract to the external bearer-token service.
// The pipeline treats the header set as opaque: it merges the headers into
// every relay request and calls HandleAuthError when the relay reports the
// credential outdated (401/403 with body code TOKEN_OUTDATED).
type AuthProvider interface {
	// AuthHeaders returns the headers to merge into a relay request.
	AuthHeaders(ctx context.Context) (map[string]string, error)

	// HandleAuthError refreshes or clears the stored credential after the
	// relay reported it outdated. The pipeline retries immediately after a
	// nil return.
	HandleAuthError(ctx context.Context) error
}

// FetchMode selects how the browse target travels to the relay.
type FetchMode int

const (
	// FetchEncrypted issues a form POST carrying the encoded target URL
	// plus the privacy headers. Default for all navigations.
	FetchEncrypted FetchMode = iota

	// FetchPlain issues a GET with the target as a query parameter. Used
	// when the relay's encrypted endpoint is not available.
	FetchPlain
)

// BridgeResponse is the raw outcome of one completed relay attempt,
// discarded after classification.
type BridgeResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// relayError is the JSON error body the relay attaches to non-200
// responses.
type relayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestBuilder constructs one attempt's HTTP request. Called fresh per
// attempt so auth headers and correlation tokens are re-derived after a
// credential refresh.
type requestBuilder func(ctx context.Context) (*http.Request, error)

// hostLikeRegex matches inputs whose leading token is a dot-separated
// host, e.g. "example.i2p" or "news.example.i2p/page".
var hostLikeRegex = regexp.MustCompile(`^[\w-]+(\.[\w-]+)+`)

// pendingNav tracks the navigation currently in flight so a newer one can
// supersede it (last-request-wins).
type pendingNav struct {
	target string
	cancel context.CancelFunc
}

// Pipeline builds, sends, retries, and classifies relay calls. One
// Pipeline serves all features (browse, upload, mail); per-operation state
// lives on the stack, and the shared navigation bookkeeping (dedup guard,
// URL cache, pending handle) is mutex-guarded.
type Pipeline struct {
	baseURL    string
	userAgent  string
	maxRetries int
	httpClient *http.Client
	crypto     *SessionCrypto
	auth       AuthProvider
	metrics    MetricsCollector // nil = metrics disabled
	breaker    *CircuitBreaker  // nil = circuit breaking disabled
	sleep      sleeper
	cookie     string

	mu           sync.Mutex
	pending      *pendingNav
	lastURL      string
	cache        map[string]*Content
	relayVersion Version
}

// NewPipeline creates a request pipeline for the configured relay. The
// crypto engine is required; auth may be nil when the relay runs without
// bearer credentials.
func NewPipeline(cfg *Config, crypto *SessionCrypto, auth AuthProvider) (*Pipeline, error) {
	if cfg == nil || crypto == nil {
		return nil, ErrInvalidArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		baseURL:    strings.TrimRight(cfg.Bridge.URL, "/"),
		userAgent:  cfg.Bridge.UserAgent,
		maxRetries: cfg.Bridge.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Bridge.requestTimeout()},
		crypto:     crypto,
		auth:       auth,
		sleep:      sleepWithContext,
		cache:      make(map[string]*Content),
	}, nil
}

// SetMetrics attaches a metrics collector. Pass nil to disable.
func (p *Pipeline) SetMetrics(m MetricsCollector) {
	p.metrics = m
}

// SetCircuitBreaker attaches a circuit breaker guarding the relay host.
// Pass nil to disable.
func (p *Pipeline) SetCircuitBreaker(cb *CircuitBreaker) {
	p.breaker = cb
}

// SetCookie sets the Cookie header value sent with encrypted browse
// requests. Empty clears it.
func (p *Pipeline) SetCookie(cookie string) {
	p.cookie = cookie
}

// ResolveTarget turns user input into an absolute URL. Inputs carrying a
// scheme pass through; host-like inputs get an http:// prefix; everything
// else resolves relative to the last navigated URL when one exists, or is
// treated as a bare host.
func (p *Pipeline) ResolveTarget(input, lastNavigated string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return input
	}
	if strings.Contains(input, "://") {
		return input
	}
	if hostLikeRegex.MatchString(input) {
		return "http://" + input
	}
	if lastNavigated != "" {
		base, err := url.Parse(lastNavigated)
		ref, refErr := url.Parse(input)
		if err == nil && refErr == nil {
			return base.ResolveReference(ref).String()
		}
	}
	return "http://" + input
}

// Fetch sends one browse request for the given absolute URL and returns
// the raw relay response. Retries, auth refresh, and the circuit breaker
// all apply; the caller classifies the body afterwards.
func (p *Pipeline) Fetch(ctx context.Context, absoluteURL string, mode FetchMode) (*BridgeResponse, error) {
	if p.crypto == nil {
		return nil, ErrNotInitialized
	}
	build := func(ctx context.Context) (*http.Request, error) {
		return p.buildBrowseRequest(ctx, absoluteURL, mode)
	}
	return p.execute(ctx, BRIDGE_ENDPOINT_BROWSE, build)
}

// Navigate resolves the input, applies the dedup guard, supersedes any
// pending navigation, fetches, and classifies the result. This is the
// high-level entry point a presentation layer calls per address-bar
// submit or link activation.
//
// A navigation for a URL already in flight, or equal to the last URL
// successfully completed, is suppressed unless force is true: the cached
// content is returned when present, ErrDuplicateRequest otherwise.
//
// Starting a new navigation cancels the previous pending one; the
// superseded caller observes ErrCancelled.
func (p *Pipeline) Navigate(ctx context.Context, input string, force bool) (*Content, error) {
	p.mu.Lock()
	target := p.ResolveTarget(input, p.lastURL)
	if target == "" {
		p.mu.Unlock()
		return nil, ErrInvalidArgument
	}

	if !force {
		inFlight := p.pending != nil && p.pending.target == target
		if inFlight || target == p.lastURL {
			cached := p.cache[target]
			p.mu.Unlock()
			Debug("Suppressing duplicate navigation to %s", target)
			if cached != nil {
				return cached, nil
			}
			return nil, ErrDuplicateRequest
		}
	}

	// Last-request-wins: a newer navigation invalidates the pending one.
	if p.pending != nil {
		Debug("Superseding pending navigation to %s", p.pending.target)
		p.pending.cancel()
	}
	navCtx, cancel := context.WithCancel(ctx)
	nav := &pendingNav{target: target, cancel: cancel}
	p.pending = nav
	p.mu.Unlock()
	defer cancel()

	resp, err := p.Fetch(navCtx, target, FetchEncrypted)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nav {
		p.pending = nil
	}
	if err != nil {
		return nil, err
	}

	content := Classify(resp.Body, resp.ContentType, target)
	p.lastURL = target
	p.cache[target] = content
	return content, nil
}

// CancelNavigation cancels the navigation currently in flight, if any. The
// awaiter observes ErrCancelled.
func (p *Pipeline) CancelNavigation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		p.pending.cancel()
		p.pending = nil
	}
}

// LastURL returns the last successfully navigated URL.
func (p *Pipeline) LastURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastURL
}

// RelayVersion returns the relay version last advertised via the
// X-Bridge-Version response header, if any.
func (p *Pipeline) RelayVersion() Version {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.relayVersion
}

// CachedContent returns the classified content cached for a URL, or nil.
func (p *Pipeline) CachedContent(absoluteURL string) *Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache[absoluteURL]
}

// execute runs the shared attempt loop for one logical relay operation:
// build, send, classify the status, and either return, refresh
// credentials, or back off and retry within the fixed attempt budget.
func (p *Pipeline) execute(ctx context.Context, endpoint string, build requestBuilder) (*BridgeResponse, error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.IncrementRequest(endpoint)
		defer func() {
			p.metrics.RecordRequestLatency(endpoint, time.Since(start))
		}()
	}

	var resp *BridgeResponse
	run := func() error {
		var err error
		resp, err = p.attemptLoop(ctx, endpoint, build)
		return err
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(run)
	} else {
		err = run()
	}

	if err != nil {
		if p.metrics != nil {
			p.metrics.IncrementError(errorKind(err))
		}
		return nil, err
	}
	return resp, nil
}

// attemptLoop is the per-operation state machine: up to maxRetries+1
// attempts, linear backoff between transport/server failures, immediate
// retry after a credential refresh, terminal exits for cancellation, auth
// rejection, crypto failures, and 503.
func (p *Pipeline) attemptLoop(ctx context.Context, endpoint string, build requestBuilder) (*BridgeResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := p.attempt(ctx, build)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, ErrAuthExpired) {
			if attempt >= p.maxRetries {
				return nil, &MaxAttemptsExceededError{Attempts: attempt + 1, LastErr: err}
			}
			if p.auth != nil {
				if rerr := p.auth.HandleAuthError(ctx); rerr != nil {
					return nil, fmt.Errorf("bridge: credential refresh failed: %w", rerr)
				}
			}
			if p.metrics != nil {
				p.metrics.IncrementAuthRefresh()
			}
			Debug("Credential refreshed after TOKEN_OUTDATED, retrying %s immediately", endpoint)
			continue
		}

		if !shouldRetry(err, attempt, p.maxRetries) {
			if IsTemporary(err) {
				// Budget exhausted on a retryable failure
				return nil, &MaxAttemptsExceededError{Attempts: attempt + 1, LastErr: err}
			}
			return nil, err
		}

		if p.metrics != nil {
			p.metrics.IncrementRetry(endpoint)
		}
		backoff := backoffForFailure(attempt)
		Debug("Attempt %d for %s failed: %v (waiting %v before retry)", attempt+1, endpoint, err, backoff)
		if serr := p.sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
	}
}

// attempt performs exactly one network round trip and classifies the
// status code.
func (p *Pipeline) attempt(ctx context.Context, build requestBuilder) (*BridgeResponse, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.httpClient.Do(req)
	if err != nil {
		// Cancellation must surface as a distinct, matchable outcome, not
		// a generic I/O failure. A deadline expiry is not cancellation: the
		// caller did not discard the work, so it stays a retryable
		// transport failure.
		if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
			return nil, ErrCancelled
		}
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}
	defer httpResp.Body.Close()

	// Raw byte path: binary payloads are corrupted by any intermediate
	// text decode, so the body is read as bytes and stays bytes.
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
			return nil, ErrCancelled
		}
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}
	if p.metrics != nil {
		p.metrics.AddBytesReceived(uint64(len(body)))
	}

	if v := httpResp.Header.Get(HEADER_BRIDGE_VERSION); v != "" {
		p.mu.Lock()
		p.relayVersion = parseVersion(v)
		p.mu.Unlock()
	}

	return classifyStatus(httpResp, body)
}

// classifyStatus maps one completed attempt to success or the error
// taxonomy.
func classifyStatus(httpResp *http.Response, body []byte) (*BridgeResponse, error) {
	switch httpResp.StatusCode {
	case http.StatusOK:
		return &BridgeResponse{
			StatusCode:  httpResp.StatusCode,
			Body:        body,
			ContentType: httpResp.Header.Get("Content-Type"),
		}, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		var relayErr relayError
		if json.Unmarshal(body, &relayErr) == nil && relayErr.Code == AUTH_CODE_TOKEN_OUTDATED {
			return nil, ErrAuthExpired
		}
		return nil, fmt.Errorf("%w (status %d)", ErrAuthRejected, httpResp.StatusCode)

	case http.StatusServiceUnavailable:
		var relayErr relayError
		_ = json.Unmarshal(body, &relayErr)
		return nil, &ServiceUnavailableError{Message: relayErr.Message}

	default:
		reason := strings.TrimSpace(strings.TrimPrefix(httpResp.Status,
			fmt.Sprintf("%d", httpResp.StatusCode)))
		return nil, &ServerError{StatusCode: httpResp.StatusCode, Reason: reason}
	}
}

// buildBrowseRequest constructs one browse attempt. Encrypted mode posts
// the encoded target under data/url with encrypted=true plus the privacy
// headers; plain mode issues a GET with the target as a query parameter.
// A fresh X-Session-Token is generated per request build.
func (p *Pipeline) buildBrowseRequest(ctx context.Context, absoluteURL string, mode FetchMode) (*http.Request, error) {
	var req *http.Request
	var err error

	switch mode {
	case FetchEncrypted:
		encoded := p.crypto.EncodeURL(absoluteURL)
		form := url.Values{}
		form.Set("data", encoded)
		form.Set("url", encoded)
		form.Set("encrypted", "true")

		req, err = http.NewRequestWithContext(ctx, http.MethodPost,
			p.baseURL+BRIDGE_ENDPOINT_BROWSE, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set(HEADER_SESSION_TOKEN, p.crypto.GenerateChannelID())
		req.Header.Set(HEADER_PRIVACY_MODE, PRIVACY_MODE_ENABLED)
		if p.cookie != "" {
			req.Header.Set("Cookie", p.cookie)
		}

	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet,
			p.baseURL+BRIDGE_ENDPOINT_BROWSE+"?url="+url.QueryEscape(absoluteURL), nil)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", p.userAgent)
	if err := p.mergeAuthHeaders(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// mergeAuthHeaders asks the external collaborator for the current header
// set and merges it into the request. A failure here is retryable: the
// token service may be mid-refresh.
func (p *Pipeline) mergeAuthHeaders(ctx context.Context, req *http.Request) error {
	if p.auth == nil {
		return nil
	}
	headers, err := p.auth.AuthHeaders(ctx)
	if err != nil {
		return &TransportError{URL: req.URL.String(), Err: fmt.Errorf("fetch auth headers: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}

// errorKind maps an error to its metrics bucket.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrAuthRejected), errors.Is(err, ErrAuthExpired):
		return "auth"
	default:
	}

	var ce *CryptoError
	if errors.As(err, &ce) {
		return "crypto"
	}
	var sue *ServiceUnavailableError
	if errors.As(err, &sue) {
		return "unavailable"
	}
	var se *ServerError
	if errors.As(err, &se) {
		return "server"
	}
	var te *TransportError
	if errors.As(err, &te) {
		return "transport"
	}
	return "other"
}
