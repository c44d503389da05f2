package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"argus/internal/logging"
)

// DriftCheckName is the validation check carrying the PSI drift score.
const DriftCheckName = "data_drift_psi"

var psiPattern = regexp.MustCompile(`psi=([\d.]+)`)

// Metrics is the GET /metrics document. Only the fields the dashboard reads
// are modelled; everything else is ignored.
type Metrics struct {
	MLPlatform MLPlatform `json:"ml_platform"`
	RealtimeML RealtimeML `json:"realtime_ml"`
}

// MLPlatform is the training pipeline section.
type MLPlatform struct {
	RegisteredVersion FlexString  `json:"registered_version"`
	Champion          string      `json:"champion,omitempty"`
	Validation        *Validation `json:"validation,omitempty"`
}

// Validation is the data validation report.
type Validation struct {
	Overall string  `json:"overall,omitempty"`
	Checks  []Check `json:"checks"`
}

// Check is one validation result. Detail is free text.
type Check struct {
	Check  string `json:"check"`
	Status string `json:"status,omitempty"`
	Detail string `json:"detail"`
}

// RealtimeML is the online inference section.
type RealtimeML struct {
	Metrics struct {
		P99 *float64 `json:"p99"`
	} `json:"metrics"`
}

// FlexString accepts a JSON string or number. Registered versions show up
// as both depending on which pipeline wrote them.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("registered_version: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// Summary is the three dashboard values. A nil field was absent or
// unparseable and leaves the previous display value.
type Summary struct {
	P99     *float64
	Version string
	Drift   *float64
}

// Summary extracts the dashboard values.
func (m *Metrics) Summary() Summary {
	var s Summary
	if p := m.RealtimeML.Metrics.P99; p != nil && *p != 0 {
		v := *p
		s.P99 = &v
	}
	s.Version = string(m.MLPlatform.RegisteredVersion)
	if v := m.MLPlatform.Validation; v != nil {
		for _, c := range v.Checks {
			if c.Check != DriftCheckName {
				continue
			}
			if d, ok := ParseDrift(c.Detail); ok {
				s.Drift = &d
			}
			break
		}
	}
	return s
}

// ParseDrift pulls the psi value out of a check detail such as
// "psi=0.0412 (threshold=0.2)".
func ParseDrift(detail string) (float64, bool) {
	m := psiPattern.FindStringSubmatch(detail)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Metrics fetches GET /metrics. Concurrent callers share one request.
func (c *Client) Metrics(ctx context.Context) (*Metrics, error) {
	v, err, shared := c.metrics.Do("metrics", func() (interface{}, error) {
		return c.fetchMetrics(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.MetricsDebug("metrics poll coalesced")
	}
	m := *v.(*Metrics)
	return &m, nil
}

func (c *Client) fetchMetrics(ctx context.Context) (*Metrics, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/metrics", nil, "")
	if err != nil {
		return nil, err
	}
	timer := logging.StartTimer(logging.CategoryMetrics, "GET /metrics")
	defer timer.Stop()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.MetricsWarn("metrics request failed: %v", err)
		return nil, fmt.Errorf("metrics: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		logging.MetricsWarn("metrics rejected: %v", err)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var m Metrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("metrics: failed to decode response: %w", err)
	}
	return &m, nil
}
