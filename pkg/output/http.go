package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"logferry/pkg/model"
)

// httpRecord is the NDJSON shape of one entry. Field names match the table
// columns used by the Postgres sink.
type httpRecord struct {
	LogDate   string `json:"LogDate"`
	Pid       int16  `json:"Pid"`
	Tid       int16  `json:"Tid"`
	Level     string `json:"Level"`
	Component string `json:"Component"`
	Content   string `json:"Content"`
}

// HTTPSink POSTs each batch as newline-delimited JSON.
type HTTPSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewHTTPSink(url string, headers map[string]string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSink{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (h *HTTPSink) Name() string { return "http" }

func (h *HTTPSink) WriteBatch(ctx context.Context, batch *model.Batch) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range batch.Entries {
		rec := httpRecord{
			LogDate:   e.LogDate,
			Pid:       e.Pid,
			Tid:       e.Tid,
			Level:     string(e.Level),
			Component: e.Component,
			Content:   e.Content,
		}
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, &body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("X-Batch-Seq", strconv.FormatUint(batch.Seq, 10))
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http sink failed with status: %d", resp.StatusCode)
	}

	return nil
}
