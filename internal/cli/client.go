package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/Flowline/internal/xjson"
)

// ErrAPI — ответ API с кодом ошибки.
var ErrAPI = errors.New("api error")

// --- Response types (повторяют api/dto.go, CLI не импортирует internal/api) ---

// FlowResponse — flow в списке.
type FlowResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"isActive"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	UpdatedAt string `json:"updatedAt"`
}

// ProblemResponse — проблема валидации.
type ProblemResponse struct {
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// SaveFlowResponse — итог сохранения flow.
type SaveFlowResponse struct {
	Flow      xjson.RawMessage   `json:"flow"`
	Problems  []ProblemResponse  `json:"problems"`
	Schedules []ScheduleResponse `json:"schedules,omitempty"`
}

// LogEntryResponse — запись журнала run.
type LogEntryResponse struct {
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
	NodeID    string `json:"nodeId,omitempty"`
	Message   string `json:"message"`
}

// ResultResponse — итог выполнения run.
type ResultResponse struct {
	Status         string             `json:"status"`
	Log            []LogEntryResponse `json:"log"`
	FinalVariables map[string]any     `json:"finalVariables"`
	Error          string             `json:"error,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID             string          `json:"id"`
	FlowID         string          `json:"flowId"`
	Status         string          `json:"status"`
	Trigger        string          `json:"trigger"`
	Variables      map[string]any  `json:"variables,omitempty"`
	StartedAt      string          `json:"startedAt,omitempty"`
	FinishedAt     string          `json:"finishedAt,omitempty"`
	DurationMs     int64           `json:"durationMs"`
	Error          string          `json:"error,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Result         *ResultResponse `json:"result,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID        string `json:"id"`
	FlowID    string `json:"flowId"`
	NodeID    string `json:"nodeId"`
	CronExpr  string `json:"cronExpression"`
	Timezone  string `json:"timezone"`
	Enabled   bool   `json:"enabled"`
	NextDueAt string `json:"nextDueAt,omitempty"`
	LastRunAt string `json:"lastRunAt,omitempty"`
	LastRunID string `json:"lastRunId,omitempty"`
}

// --- Request types ---

// CreateRunRequest — запуск сохранённого flow.
type CreateRunRequest struct {
	Variables      map[string]any `json:"variables,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	FlowID string
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data xjson.RawMessage `json:"data"`
}

type listResponse struct {
	Data  xjson.RawMessage `json:"data"`
	Total int              `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code     string            `json:"code"`
		Message  string            `json:"message"`
		Problems []ProblemResponse `json:"problems,omitempty"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Flowline API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// run с ?wait=true может идти долго
			Timeout: 10 * time.Minute,
		},
	}
}

// --- Flows ---

// ListFlows возвращает все flows.
func (c *Client) ListFlows(activeOnly bool) ([]FlowResponse, error) {
	params := url.Values{}
	if activeOnly {
		params.Set("active", "true")
	}

	var flows []FlowResponse
	err := c.list("/api/v1/flows", params, &flows)
	return flows, err
}

// SaveFlow сохраняет документ flow под его ID.
func (c *Client) SaveFlow(id string, doc xjson.RawMessage) (*SaveFlowResponse, error) {
	var resp SaveFlowResponse
	err := c.put("/api/v1/flows/"+url.PathEscape(id), doc, &resp)
	return &resp, err
}

// DeleteFlow удаляет flow.
func (c *Client) DeleteFlow(id string) error {
	return c.delete("/api/v1/flows/" + url.PathEscape(id))
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.FlowID != "" {
		params.Set("flow_id", opts.FlowID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun запускает сохранённый flow.
// wait=true ждёт итога на стороне API.
func (c *Client) CreateRun(flowID string, req CreateRunRequest, wait bool) (*RunResponse, error) {
	path := "/api/v1/flows/" + url.PathEscape(flowID) + "/runs"
	if wait {
		path += "?wait=true"
	}

	var run RunResponse
	err := c.post(path, req, &run)
	return &run, err
}

// GetRun возвращает run вместе с журналом.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &run)
	return &run, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если flowID не пустой — фильтрует.
func (c *Client) ListSchedules(flowID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if flowID != "" {
		params.Set("flow_id", flowID)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := xjson.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return xjson.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := xjson.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return xjson.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := xjson.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := xjson.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode)
	}

	err := fmt.Errorf("%w: %s: %s", ErrAPI, er.Error.Code, er.Error.Message)
	for _, p := range er.Error.Problems {
		err = fmt.Errorf("%w\n  - %s", err, formatProblem(p))
	}
	return err
}

// formatProblem форматирует проблему валидации в одну строку.
func formatProblem(p ProblemResponse) string {
	switch {
	case p.NodeID != "":
		return fmt.Sprintf("node %s: %s", p.NodeID, p.Message)
	case p.EdgeID != "":
		return fmt.Sprintf("edge %s: %s", p.EdgeID, p.Message)
	default:
		return p.Message
	}
}
