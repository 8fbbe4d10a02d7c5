package sheetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"absensi/internal/metrics"
	"absensi/internal/model"
)

// Actions understood by the spreadsheet web app.
const (
	ActionGetAllData       = "GET_ALL_DATA"
	ActionSaveStudents     = "SAVE_STUDENTS"
	ActionSaveTeachers     = "SAVE_TEACHERS"
	ActionSaveHolidays     = "SAVE_HOLIDAYS"
	ActionSaveConfig       = "SAVE_CONFIG"
	ActionAddAttendance    = "ADD_ATTENDANCE"
	ActionDeleteAttendance = "DELETE_ATTENDANCE"
	ActionUpdateStatus     = "UPDATE_ATTENDANCE_STATUS"
)

// ErrRejected is returned when the service answers without success:true.
var ErrRejected = errors.New("spreadsheet rejected the request")

// ErrEmptyDataset is returned when GET_ALL_DATA answers null.
var ErrEmptyDataset = errors.New("spreadsheet returned no data")

// Client calls the spreadsheet web app. All operations go through one URL and
// are told apart by the action query parameter.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     *zap.Logger
	Now     func() time.Time
}

// New creates a client. A zero timeout falls back to 30s; Apps Script cold
// starts are slow.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log,
		Now:     time.Now,
	}
}

// FetchAll loads every collection in a single round trip.
func (c *Client) FetchAll(ctx context.Context) (*Dataset, error) {
	body, err := c.call(ctx, ActionGetAllData, http.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}
	var w *wireDataset
	if err := json.Unmarshal(body, &w); err != nil {
		c.fail(ActionGetAllData, "error", err)
		return nil, fmt.Errorf("decode %s: %w", ActionGetAllData, err)
	}
	if w == nil {
		c.fail(ActionGetAllData, "error", ErrEmptyDataset)
		return nil, fmt.Errorf("%s: %w", ActionGetAllData, ErrEmptyDataset)
	}
	metrics.GatewayRequests.WithLabelValues(ActionGetAllData, "ok").Inc()
	return w.normalize(), nil
}

// AddAttendance appends one record to the attendance sheet.
func (c *Client) AddAttendance(ctx context.Context, rec model.AttendanceRecord) error {
	return c.write(ctx, ActionAddAttendance, http.MethodPost, nil, rec)
}

// DeleteAttendance removes the record with the given id.
func (c *Client) DeleteAttendance(ctx context.Context, id string) error {
	return c.write(ctx, ActionDeleteAttendance, http.MethodGet, url.Values{"id": {id}}, nil)
}

// UpdateAttendanceStatus changes the status of one record.
func (c *Client) UpdateAttendanceStatus(ctx context.Context, id string, status model.Status) error {
	payload := struct {
		ID     string       `json:"id"`
		Status model.Status `json:"status"`
	}{id, status}
	return c.write(ctx, ActionUpdateStatus, http.MethodPost, nil, payload)
}

// SaveStudents replaces the whole student sheet.
func (c *Client) SaveStudents(ctx context.Context, students []model.Student) error {
	return c.write(ctx, ActionSaveStudents, http.MethodPost, nil, nonNil(students))
}

// SaveTeachers replaces the whole teacher sheet.
func (c *Client) SaveTeachers(ctx context.Context, teachers []model.Teacher) error {
	return c.write(ctx, ActionSaveTeachers, http.MethodPost, nil, nonNil(teachers))
}

// SaveHolidays replaces the whole holiday sheet.
func (c *Client) SaveHolidays(ctx context.Context, holidays []model.Holiday) error {
	return c.write(ctx, ActionSaveHolidays, http.MethodPost, nil, nonNil(holidays))
}

// SaveConfig replaces the school configuration.
func (c *Client) SaveConfig(ctx context.Context, cfg model.SchoolConfig) error {
	return c.write(ctx, ActionSaveConfig, http.MethodPost, nil, cfg)
}

func (c *Client) write(ctx context.Context, action, method string, query url.Values, payload any) error {
	body, err := c.call(ctx, action, method, query, payload)
	if err != nil {
		return err
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		c.fail(action, "error", err)
		return fmt.Errorf("decode %s: %w", action, err)
	}
	if !out.Success {
		c.fail(action, "rejected", ErrRejected)
		return fmt.Errorf("%s: %w", action, ErrRejected)
	}
	metrics.GatewayRequests.WithLabelValues(action, "ok").Inc()
	return nil
}

// call issues one request and returns the raw 2xx body. POST payloads are
// JSON sent as text/plain so browsers hitting the same script skip the CORS
// preflight; the script parses the body regardless of content type.
func (c *Client) call(ctx context.Context, action, method string, query url.Values, payload any) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.GatewayDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		c.fail(action, "error", err)
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	q.Set("_t", strconv.FormatInt(c.Now().UnixMilli(), 10))
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var reader io.Reader
	if method == http.MethodPost && payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.fail(action, "error", err)
			return nil, fmt.Errorf("encode %s payload: %w", action, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		c.fail(action, "error", err)
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.fail(action, "error", err)
		return nil, fmt.Errorf("spreadsheet request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(action, "error", err)
		return nil, fmt.Errorf("read %s response: %w", action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("spreadsheet error %s: %s", resp.Status, truncate(body, 256))
		c.fail(action, "error", err)
		return nil, err
	}
	return body, nil
}

func (c *Client) fail(action, outcome string, err error) {
	metrics.GatewayRequests.WithLabelValues(action, outcome).Inc()
	c.Log.Warn("spreadsheet call failed", zap.String("action", action), zap.Error(err))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
