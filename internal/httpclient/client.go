// Package httpclient — HTTP-клиент для узлов httpRequest.
//
// Клиент отменяет запрос вместе с контекстом run, ограничивает
// частоту исходящих запросов и размер тела ответа.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Flowline/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 10 * 1024 * 1024 // 10 MB
)

// Ошибки клиента.
var (
	// ErrRequestFailed — сетевая ошибка или ошибка протокола.
	ErrRequestFailed = errors.New("http request failed")

	// ErrCancelled — запрос прерван отменой контекста.
	ErrCancelled = errors.New("http request cancelled")

	// ErrResponseTooLarge — тело ответа больше допустимого.
	ErrResponseTooLarge = errors.New("http response body too large")
)

// Request — исходящий запрос.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout — таймаут этого запроса (0 — таймаут клиента).
	Timeout time.Duration
}

// Response — ответ сервера.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Client — коллаборатор для выполнения HTTP-запросов.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc позволяет использовать функцию как Client (тесты, заглушки).
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Do реализует Client.
func (f ClientFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Config — настройки клиента.
type Config struct {
	// Timeout — таймаут запроса по умолчанию (30s).
	Timeout time.Duration

	// RequestsPerSecond — предел частоты запросов (0 — без ограничения).
	RequestsPerSecond float64

	// Burst — размер всплеска для лимитера (по умолчанию 1).
	Burst int

	// MaxResponseBody — предел тела ответа в байтах (по умолчанию 10 MB).
	MaxResponseBody int64

	// InsecureSkipVerify — не проверять TLS-сертификаты.
	InsecureSkipVerify bool

	// DisableRedirects — не следовать редиректам.
	DisableRedirects bool
}

// HTTPClient — Client на net/http.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	maxBody int64
}

// New создаёт клиент.
func New(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = maxResponseBody
	}

	// Настройка редиректов
	var checkRedirect func(*http.Request, []*http.Request) error
	if cfg.DisableRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	c := &HTTPClient{
		client: &http.Client{
			CheckRedirect: checkRedirect,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: cfg.Timeout,
		maxBody: cfg.MaxResponseBody,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c
}

// Do выполняет запрос.
//
// Отмена ctx прерывает и ожидание лимитера, и запрос в полёте:
// в этом случае возвращается ErrCancelled.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	// 1. Ждём разрешения лимитера
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrRequestFailed, err)
		}
	}

	// 2. Таймаут запроса
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 3. Собираем запрос
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	// 4. Выполняем
	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		telemetry.HTTPRequests.WithLabelValues(telemetry.StatusClass(0)).Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	// 5. Читаем тело с ограничением размера
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	telemetry.HTTPRequests.WithLabelValues(telemetry.StatusClass(resp.StatusCode)).Inc()

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
		Duration:   time.Since(start),
	}, nil
}
