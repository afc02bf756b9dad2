// Package transport ships a finished ParseResult to the remote analysis
// backend. Transmission is fire-and-forget: the decode path never waits on
// it and a failure is only ever a log line and a counter.
package transport

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/metric"
	"github.com/skyfleet/flightlog/internal/model"
)

// Client posts ParseResults to one endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
	metrics  *metric.Metrics
	wg       sync.WaitGroup
}

// NewClient creates a transport client for endpoint. An empty endpoint
// disables sending entirely.
func NewClient(endpoint string, log *zap.Logger, m *metric.Metrics) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      log,
		metrics:  m,
	}
}

// Send transmits result as a detached task and returns immediately. No
// retry, no backpressure; the outcome is observed only for logging and
// metrics.
func (c *Client) Send(result model.ParseResult) {
	if c.endpoint == "" {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.post(result)
	}()
}

// Wait blocks until every in-flight transmission has finished. Used on
// shutdown and in tests; the decode path never calls it.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) post(result model.ParseResult) {
	body, err := json.Marshal(result)
	if err != nil {
		c.fail("encode", err)
		return
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		c.fail("compress", err)
		return
	}
	if err := zw.Close(); err != nil {
		c.fail("compress", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, &buf)
	if err != nil {
		c.fail("request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail("send", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("remote rejected parse result",
			zap.String("endpoint", c.endpoint),
			zap.Int("status", resp.StatusCode),
		)
		c.metrics.ResultSends.WithLabelValues("rejected").Inc()
		return
	}

	c.log.Info("parse result delivered",
		zap.String("endpoint", c.endpoint),
		zap.Int("bodyBytes", len(body)),
	)
	c.metrics.ResultSends.WithLabelValues("ok").Inc()
}

func (c *Client) fail(stage string, err error) {
	c.log.Warn("parse result transmission failed",
		zap.String("endpoint", c.endpoint),
		zap.String("stage", stage),
		zap.Error(err),
	)
	c.metrics.ResultSends.WithLabelValues(stage).Inc()
}
