package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"telenotify/internal/config"
	"telenotify/internal/metrics"
	logx "telenotify/pkg/logx"
)

const maxErrorBody = 64 << 10

// Result is the terminal state of one message. It is reported to the worker
// for logging, metrics and the journal; producers never see it.
type Result struct {
	ID          string
	Outcome     Outcome
	Attempts    int
	Status      int
	Description string
	Err         error
	Duration    time.Duration
}

// Sender performs sendMessage calls against the Bot API.
//
// Deliver and DeliverOnce may run concurrently, but the worker calls them
// from one goroutine only.
type Sender struct {
	log     logx.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	fixed   *http.Client
	client  *http.Client
	connect time.Duration
	limiter *rate.Limiter
	limRate int
}

type Option func(*Sender)

// WithHTTPClient pins the client; connect_timeout is then ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.fixed = c }
}

func New(log logx.Logger, m *metrics.Metrics, opts ...Option) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{log: log, metrics: m}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Deliver sends text with up to p.MaxRetries retries on RateLimited and
// Transient outcomes. Backoff sleeps end early when ctx is done, abandoning
// the chain. A request in flight is not interrupted by ctx.
func (s *Sender) Deliver(ctx context.Context, creds config.Credentials, text string, p config.Policy) Result {
	return s.run(ctx, creds, text, p, p.MaxRetries)
}

// DeliverOnce makes a single attempt. Used by the shutdown drain.
func (s *Sender) DeliverOnce(ctx context.Context, creds config.Credentials, text string, p config.Policy) Result {
	return s.run(ctx, creds, text, p, 0)
}

func (s *Sender) run(ctx context.Context, creds config.Credentials, text string, p config.Policy, retries int) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	res := Result{ID: uuid.NewString()}
	log := s.log.With(logx.String("delivery_id", res.ID))
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		s.metrics.Result(res.Outcome.String(), res.Duration)
	}()

	maxAttempts := 1 + retries
	for attempt := 0; ; attempt++ {
		if lim := s.rateLimiter(p.RatePerSec); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				res.Outcome, res.Err = Cancelled, err
				log.Debug("delivery cancelled while rate limited", logx.Int("attempt", attempt))
				return res
			}
		}

		status, desc, err := s.attempt(ctx, creds, text, p)
		out := Classify(status, err)
		res.Attempts = attempt + 1
		res.Status, res.Description, res.Err = status, desc, err
		s.metrics.Attempt(out.String())

		fields := []logx.Field{
			logx.Int("attempt", attempt+1),
			logx.Int("max_attempts", maxAttempts),
			logx.Int("status", status),
			logx.String("description", desc),
			logx.Err(err),
		}
		switch out {
		case Sent:
			res.Outcome = Sent
			log.Debug("telegram message sent", fields...)
			return res
		case Cancelled:
			res.Outcome = Cancelled
			log.Debug("delivery cancelled", fields...)
			return res
		case AuthRejected:
			res.Outcome = AuthRejected
			log.Error("telegram rejected token or chat id; check telegram.token and telegram.chat_id", fields...)
			return res
		case ClientRejected:
			res.Outcome = ClientRejected
			log.Warn("telegram rejected the message; check the template Markdown", fields...)
			return res
		case RateLimited:
			log.Warn("telegram rate limit hit", fields...)
		default:
			log.Warn("telegram send failed", fields...)
		}

		if attempt >= retries {
			res.Outcome = out
			if retries > 0 {
				res.Outcome = RetriesExhausted
				log.Error("message dropped after retries", fields...)
			}
			return res
		}

		delay := Backoff(p.BackoffBase, attempt)
		if !sleep(ctx, delay) {
			res.Outcome = Cancelled
			log.Debug("retry abandoned on shutdown", logx.Int("attempt", attempt+1), logx.Duration("backoff", delay))
			return res
		}
	}
}

func (s *Sender) attempt(ctx context.Context, creds config.Credentials, text string, p config.Policy) (int, string, error) {
	timeout := p.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	// An attempt already on the wire runs to completion or its own timeout;
	// cancelling ctx only abandons the backoff that follows.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := newRequest(actx, creds, text, p)
	if err != nil {
		return 0, "", err
	}
	resp, err := s.httpClient(p.ConnectTimeout).Do(req)
	if err != nil {
		return 0, "", redact(err)
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	if resp.StatusCode/100 != 2 {
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&out)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, out.Description, nil
}

// newRequest builds the sendMessage call. POST carries a form body, GET the
// same fields in the query string.
func newRequest(ctx context.Context, creds config.Credentials, text string, p config.Policy) (*http.Request, error) {
	base := strings.TrimRight(p.APIBase, "/")
	if base == "" {
		base = config.DefaultAPIBase
	}
	endpoint := base + "/bot" + strings.TrimSpace(creds.Token) + "/sendMessage"

	form := url.Values{}
	form.Set("chat_id", strings.TrimSpace(creds.ChatID))
	form.Set("parse_mode", "Markdown")
	form.Set("text", text)

	if p.Method == http.MethodGet {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+form.Encode(), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// redact drops the request URL (which embeds the bot token) from transport errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

func (s *Sender) httpClient(connect time.Duration) *http.Client {
	if s.fixed != nil {
		return s.fixed
	}
	if connect <= 0 {
		connect = config.DefaultConnectTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.connect == connect {
		return s.client
	}
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = connect
	s.client = &http.Client{Transport: tr}
	s.connect = connect
	return s.client
}

// rateLimiter returns the shared token bucket for perSec, or nil when off.
// Burst equals the rate so short spikes don't block.
func (s *Sender) rateLimiter(perSec int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perSec <= 0 {
		s.limiter, s.limRate = nil, 0
		return nil
	}
	if s.limiter == nil || s.limRate != perSec {
		s.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		s.limRate = perSec
	}
	return s.limiter
}
