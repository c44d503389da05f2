package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"argus/internal/backend"
	"argus/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
)

const simulationPending = "[*] Fetching simulation stream...\n"

// enterDashboard switches to the dashboard and polls immediately.
func (m Model) enterDashboard() (Model, tea.Cmd) {
	m.viewMode = DashboardView
	m.dash.pollGen++
	m.dash.loading = true
	return m, metricsCmd(m.client, m.dash.pollGen)
}

// leaveDashboard stops polling. A running simulation keeps streaming.
func (m Model) leaveDashboard() Model {
	m.viewMode = ChatView
	m.dash.pollGen++
	m.dash.loading = false
	return m
}

func metricsCmd(client *backend.Client, gen int) tea.Cmd {
	return func() tea.Msg {
		mt, err := client.Metrics(context.Background())
		if err != nil {
			return metricsMsg{gen: gen, err: err}
		}
		return metricsMsg{gen: gen, summary: mt.Summary()}
	}
}

func (m Model) handleMetrics(msg metricsMsg) (Model, tea.Cmd) {
	m.dash.loading = false
	if msg.err != nil {
		logging.MetricsWarn("metrics poll failed: %v", msg.err)
		m.dash.status = "metrics unavailable: " + msg.err.Error()
	} else {
		m.dash = applySummary(m.dash, msg.summary, m.cfg.Dashboard.DriftThreshold)
		m.dash.status = "updated " + time.Now().Format("15:04:05")
	}

	if msg.gen != m.dash.pollGen || m.viewMode != DashboardView {
		return m, nil
	}
	interval := m.cfg.GetMetricsInterval()
	if interval <= 0 {
		return m, nil
	}
	gen := msg.gen
	return m, tea.Tick(interval, func(time.Time) tea.Msg {
		return metricsTickMsg{gen: gen}
	})
}

func (m Model) handleMetricsTick(msg metricsTickMsg) (Model, tea.Cmd) {
	if msg.gen != m.dash.pollGen || m.viewMode != DashboardView {
		return m, nil
	}
	m.dash.loading = true
	return m, metricsCmd(m.client, msg.gen)
}

// applySummary updates the displayed values. Absent values keep whatever
// was shown before.
func applySummary(d dashboard, s backend.Summary, threshold float64) dashboard {
	if s.P99 != nil {
		d.p99 = fmt.Sprintf("%.2f ms", *s.P99)
	}
	if s.Version != "" {
		d.version = "v" + s.Version
	}
	if s.Drift != nil {
		d.drift = fmt.Sprintf("%.3f", *s.Drift)
		d.driftGood = *s.Drift < threshold
	}
	return d
}

// startSimulation runs the backend simulation and streams its log.
func (m Model) startSimulation() (Model, tea.Cmd) {
	if m.dash.simRunning {
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.dash.simRunning = true
	m.dash.simCancel = cancel
	m.dash.log = []byte(simulationPending)
	logging.Metrics("simulation requested")
	return m, simulationCmd(ctx, m.client)
}

func simulationCmd(ctx context.Context, client *backend.Client) tea.Cmd {
	return func() tea.Msg {
		s, err := client.Simulation(ctx)
		if err != nil {
			return simEndMsg{err: err}
		}
		return simStartedMsg{stream: s}
	}
}

func readSimCmd(s *backend.Stream) tea.Cmd {
	return func() tea.Msg {
		data, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return simEndMsg{err: err}
		}
		return simChunkMsg{data: data}
	}
}

func (m Model) handleSimStarted(msg simStartedMsg) (Model, tea.Cmd) {
	if !m.dash.simRunning {
		msg.stream.Close()
		return m, nil
	}
	m.dash.simStream = msg.stream
	m.dash.log = m.dash.log[:0]
	return m, readSimCmd(msg.stream)
}

func (m Model) handleSimChunk(msg simChunkMsg) (Model, tea.Cmd) {
	if !m.dash.simRunning || m.dash.simStream == nil {
		return m, nil
	}
	m.dash.log = append(m.dash.log, msg.data...)
	return m, readSimCmd(m.dash.simStream)
}

func (m Model) handleSimEnd(msg simEndMsg) (Model, tea.Cmd) {
	if !m.dash.simRunning {
		return m, nil
	}
	m = m.stopSimulation()
	if msg.err != nil {
		logging.MetricsWarn("simulation failed: %v", msg.err)
		m.dash.log = append(m.dash.log, fmt.Sprintf("\n[ERROR] Simulation failed: %v", msg.err)...)
		return m, nil
	}
	logging.Metrics("simulation finished, refreshing metrics")
	m.dash.loading = true
	// Generation 0 never matches a poll loop, so this refresh does not
	// start a second one.
	return m, metricsCmd(m.client, 0)
}

func (m Model) stopSimulation() Model {
	if m.dash.simCancel != nil {
		m.dash.simCancel()
		m.dash.simCancel = nil
	}
	if m.dash.simStream != nil {
		m.dash.simStream.Close()
		m.dash.simStream = nil
	}
	m.dash.simRunning = false
	return m
}
