package steps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/httpclient"
	"github.com/shaiso/Flowline/internal/xjson"
)

// HTTPStep — узел HTTP-запроса.
//
// Выполняет запрос к внешнему API и пишет результат в <nodeId>.result.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/items/{{vars.id}}",
//	    "headers": {"Authorization": "Bearer {{vars.token}}"},
//	    "queryParams": {"page": "{{loop.number}}"},
//	    "body": {"name": "{{vars.name}}"},
//	    "parseJson": true,
//	    "failOnError": false,
//	    "timeoutSec": 30
//	}
//
// Результат:
//
//	{
//	    "status": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "data": {...}  // разобранный JSON или строка
//	}
type HTTPStep struct {
	client httpclient.Client
}

// NewHTTPStep создаёт HTTPStep. Nil-клиент заменяется клиентом по умолчанию.
func NewHTTPStep(client httpclient.Client) *HTTPStep {
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	return &HTTPStep{client: client}
}

// Kind возвращает тип узла.
func (s *HTTPStep) Kind() domain.NodeKind {
	return domain.KindHTTPRequest
}

// Execute выполняет HTTP запрос.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.HTTPRequestConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	// 1. Разрешаем шаблоны в конфигурации
	httpReq, err := s.buildRequest(cfg, req.Vars, out)
	if err != nil {
		return out, err
	}

	// 2. Выполняем запрос
	start := time.Now()
	resp, err := s.client.Do(ctx, httpReq)
	if err != nil {
		if errors.Is(err, httpclient.ErrCancelled) || ctx.Err() != nil {
			return out, fmt.Errorf("%w: %v", engine.ErrRunCancelled, err)
		}
		out.Addf(domain.SeverityHTTP, "%s %s → failed after %s", httpReq.Method, httpReq.URL, time.Since(start).Round(time.Millisecond))
		return out, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	out.Addf(domain.SeverityHTTP, "%s %s → %d (%s)", httpReq.Method, httpReq.URL, resp.StatusCode, resp.Duration.Round(time.Millisecond))

	// 3. Разбираем ответ и пишем результат
	data := s.parseBody(resp.Body, cfg.ShouldParseJSON(), out)
	headers := make(map[string]any, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[k] = v
	}
	out.Set(engine.ResultKey(req.Node.ID), map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"data":    data,
	})

	if cfg.FailOnError && resp.StatusCode >= http.StatusBadRequest {
		return out, fmt.Errorf("%w: %s %s returned %d", ErrHTTPStatus, httpReq.Method, httpReq.URL, resp.StatusCode)
	}
	return out, nil
}

// buildRequest разрешает шаблоны и собирает запрос.
func (s *HTTPStep) buildRequest(cfg *domain.HTTPRequestConfig, vars *engine.Store, out *Outcome) (*httpclient.Request, error) {
	method, err := engine.ResolveString(cfg.Method, vars)
	warnUnresolved(out, err)
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	rawURL, err := engine.ResolveString(cfg.Target(), vars)
	warnUnresolved(out, err)

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrInvalidConfig, rawURL)
	}

	// Query-параметры добавляются к тем, что уже есть в URL
	if len(cfg.QueryParams) > 0 {
		q := u.Query()
		for _, k := range sortedKeys(cfg.QueryParams) {
			v, err := engine.ResolveString(cfg.QueryParams[k], vars)
			warnUnresolved(out, err)
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for _, k := range sortedKeys(cfg.Headers) {
		v, err := engine.ResolveString(cfg.Headers[k], vars)
		warnUnresolved(out, err)
		headers[k] = v
	}

	var body []byte
	if cfg.Body != nil && method != http.MethodGet && method != http.MethodHead {
		resolved, err := engine.ResolveValue(cfg.Body, vars)
		warnUnresolved(out, err)

		body, err = serializeBody(resolved)
		if err != nil {
			return nil, fmt.Errorf("%w: serialize body: %v", ErrInvalidConfig, err)
		}
		// Устанавливаем Content-Type, если не задан
		if !hasHeader(headers, "Content-Type") && xjson.Valid(body) {
			headers["Content-Type"] = "application/json"
		}
	}

	return &httpclient.Request{
		Method:  method,
		URL:     u.String(),
		Headers: headers,
		Body:    body,
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	}, nil
}

// parseBody разбирает тело ответа.
// Невалидный JSON при parseJson отдаётся строкой с предупреждением.
func (s *HTTPStep) parseBody(data []byte, parseJSON bool, out *Outcome) any {
	if !parseJSON || len(data) == 0 {
		return string(data)
	}
	var v any
	if err := xjson.Unmarshal(data, &v); err != nil {
		out.Add(domain.SeverityWarning, "Response body is not valid JSON, stored as text")
		return string(data)
	}
	return v
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return xjson.Marshal(v)
	}
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
