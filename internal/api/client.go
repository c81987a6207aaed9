package api

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
	"strings"
	"time"

	"github.com/five82/leafrun/internal/queue"
	"github.com/five82/leafrun/internal/route"
)

const (
	defaultBaseURL     = "http://127.0.0.1:8080"
	defaultRoutesPath  = "/routes"
	defaultReportsPath = "/reports"
	defaultInitPath    = "/init-data"
	defaultUserAgent   = "leafrun/dev"
	defaultTimeout     = 10 * time.Second
)

// Report export formats accepted by FetchReport.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrServer marks a response the server rejected, either with an error
// status or with an error field in a 2xx body.
var ErrServer = errors.New("server rejected request")

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	RoutesPath  string
	ReportsPath string
	InitPath    string
	Timeout     time.Duration
	UserAgent   string
	// Observe is called after every request with the transport error, or
	// nil when the server answered. Status errors count as answered.
	Observe func(err error)
}

// Client talks to the route and report endpoints.
type Client struct {
	baseURL     *url.URL
	routesPath  string
	reportsPath string
	initPath    string
	http        *http.Client
	userAgent   string
	observe     func(error)
}

// NewClient builds a Client from opts.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:     base,
		routesPath:  orDefault(opts.RoutesPath, defaultRoutesPath),
		reportsPath: orDefault(opts.ReportsPath, defaultReportsPath),
		initPath:    orDefault(opts.InitPath, defaultInitPath),
		http:        &http.Client{Timeout: timeout},
		userAgent:   orDefault(opts.UserAgent, defaultUserAgent),
		observe:     opts.Observe,
	}
	return c, nil
}

// FetchRoute returns the promoter's route for date (YYYY-MM-DD). The boolean
// is false when the server has no route yet.
func (c *Client) FetchRoute(ctx context.Context, promoterID, date string) (route.Snapshot, bool, error) {
	if c == nil {
		return route.Snapshot{}, false, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if id := strings.TrimSpace(promoterID); id != "" {
		values.Set("promoter_id", id)
	}
	if date != "" {
		values.Set("date", date)
	}
	rel := &url.URL{Path: c.routesPath, RawQuery: values.Encode()}

	var payload *RouteResponse
	if err := c.doJSON(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return route.Snapshot{}, false, err
	}
	if payload == nil || payload.ID == 0 {
		return route.Snapshot{}, false, nil
	}
	return payload.Snapshot(), true, nil
}

// InitRoute asks the server to provision today's route. Safe to call when
// a route already exists.
func (c *Client) InitRoute(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.doJSON(ctx, http.MethodPost, &url.URL{Path: c.initPath}, nil, nil)
}

// CompletePoint submits a point completion.
func (c *Client) CompletePoint(ctx context.Context, p queue.CompletePoint) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body := completePointRequest{
		Action:   "complete_point",
		PointID:  p.PointID,
		Leaflets: p.Leaflets,
	}
	if p.Photo != "" {
		photo := p.Photo
		body.PhotoURL = &photo
	}
	return c.doJSON(ctx, http.MethodPost, &url.URL{Path: c.routesPath}, body, nil)
}

// SendReport submits the daily report for routeID and returns the server's
// summary.
func (c *Client) SendReport(ctx context.Context, routeID int64) (route.Summary, error) {
	if c == nil {
		return route.Summary{}, fmt.Errorf("client is nil")
	}
	var payload sendReportResponse
	if err := c.doJSON(ctx, http.MethodPost, &url.URL{Path: c.reportsPath}, sendReportRequest{RouteID: routeID}, &payload); err != nil {
		return route.Summary{}, err
	}
	if payload.Status != "" && payload.Status != "sent" {
		return route.Summary{}, fmt.Errorf("%w: report status %q", ErrServer, payload.Status)
	}
	summary := payload.Summary
	if summary.ReportID == 0 {
		summary.ReportID = payload.ReportID
	}
	return summary, nil
}

// FetchReport downloads the report rows for routeID in the given format.
func (c *Client) FetchReport(ctx context.Context, routeID int64, format string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatCSV:
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
	values := url.Values{}
	values.Set("route_id", strconv.FormatInt(routeID, 10))
	values.Set("format", format)
	rel := &url.URL{Path: c.reportsPath, RawQuery: values.Encode()}

	resp, err := c.send(ctx, http.MethodGet, rel, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(rel, resp.StatusCode, data)
	}
	if format == FormatJSON {
		if msg := bodyError(data); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrServer, msg)
		}
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	resp, err := c.send(ctx, method, rel, reader)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return statusError(rel, resp.StatusCode, data)
	}
	if msg := bodyError(data); msg != "" {
		return fmt.Errorf("%w: %s", ErrServer, msg)
	}
	if dest == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method string, rel *url.URL, body io.Reader) (*http.Response, error) {
	reqURL, err := c.resolve(rel)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if c.observe != nil && ctx.Err() == nil {
		c.observe(err)
	}
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// resolve appends rel to the base URL path. A rel path that is itself an
// absolute URL is used as is, so each endpoint may live on its own host.
func (c *Client) resolve(rel *url.URL) (*url.URL, error) {
	if strings.Contains(rel.Path, "://") {
		u, err := url.Parse(rel.Path)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint %q: %w", rel.Path, err)
		}
		u.RawQuery = rel.RawQuery
		return u, nil
	}
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return &u, nil
}

func statusError(rel *url.URL, status int, body []byte) error {
	if msg := bodyError(body); msg != "" {
		return fmt.Errorf("%w: api %s returned status %d: %s", ErrServer, rel.Path, status, msg)
	}
	return fmt.Errorf("%w: api %s returned status %d", ErrServer, rel.Path, status)
}

// bodyError returns the error field of a JSON object body, if any.
func bodyError(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var e errorBody
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return ""
	}
	return strings.TrimSpace(e.Error)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_base %q: %w", raw, err)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
