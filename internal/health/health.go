// Package health implements the health monitor (spec §4.5, C7): a
// registry of co-resident services checked every scan tick, with
// alert-gated restart on sustained failure. Modeled on the teacher's
// infrastructure/resilience health-check registry, generalized from
// "blockchain node liveness" to arbitrary HTTP/TCP/process/docker
// service checks, and switched to the zap logging stack per
// SPEC_FULL.md's ambient-stack decision to exercise both logging
// libraries the teacher carries.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orchestratord/orchestratord/internal/config"
)

// Status is one service's liveness.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// CheckResult is the outcome of one service check.
type CheckResult struct {
	Service   string
	Status    Status
	Detail    string
	CheckedAt time.Time
}

// serviceState tracks a service's alert-gating bookkeeping across
// scan ticks.
type serviceState struct {
	cfg              config.ServiceCheck
	lastChecked      time.Time
	lastResult       CheckResult
	consecutiveFails int
	restartTimes     []time.Time // sliding window, for the per-service budget view
}

// Monitor owns the service registry and restart budget.
type Monitor struct {
	mu       sync.Mutex
	services []*serviceState
	cfg      config.Health
	budget   config.RestartBudget
	log      *zap.SugaredLogger
	selfLabel string // the daemon's own launch-agent label, always excluded
	httpClient *http.Client
	metrics    MetricsRecorder
}

// MetricsRecorder is the narrow hook internal/metrics.Recorder satisfies
// structurally; nil is a valid no-op recorder.
type MetricsRecorder interface {
	HealthCheckObserved(service, status string, seconds float64)
	HealthRestartAttempted(service, outcome string)
}

// SetMetrics installs an optional metrics recorder.
func (m *Monitor) SetMetrics(r MetricsRecorder) { m.metrics = r }

// NewMonitor builds a Monitor from the configured service list,
// refusing to register a service matching selfLabel (spec §4.5
// "Self-exclusion").
func NewMonitor(cfg config.Health, selfLabel string, log *zap.SugaredLogger) *Monitor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Monitor{cfg: cfg, budget: cfg.RestartBudget, log: log, selfLabel: selfLabel, httpClient: &http.Client{}}
	for _, svc := range cfg.Services {
		if selfLabel != "" && svc.LaunchLabel == selfLabel {
			log.Warnw("refusing to register self as a monitored service", "service", svc.Name)
			continue
		}
		m.services = append(m.services, &serviceState{cfg: svc})
	}
	return m
}

// CheckAllResult is what one CheckAll invocation produces.
type CheckAllResult struct {
	Results             []CheckResult
	CorrelatedFailure   bool
	DownServices        []string
	NewlyAlerting       []string // services crossing consecutiveFailsBeforeAlert this cycle
	RestartCandidates   []string // restartable, budget-permitting, no correlated event
}

// CheckAll runs every service whose intervalMs has elapsed since its
// last check (spec §4.5 "checkAll() ... only fires checks whose
// individual intervalMs has elapsed"). HTTP/TCP checks run
// concurrently; process/docker checks run sequentially, matching the
// spec's "promises-settled vs. synchronous shell-outs" split.
func (m *Monitor) CheckAll(ctx context.Context, autonomyLevel string) CheckAllResult {
	m.mu.Lock()
	due := m.dueLocked()
	m.mu.Unlock()

	parallel := make([]*serviceState, 0, len(due))
	sequential := make([]*serviceState, 0, len(due))
	for _, s := range due {
		switch s.cfg.Type {
		case "http", "tcp":
			parallel = append(parallel, s)
		default:
			sequential = append(sequential, s)
		}
	}

	results := make([]CheckResult, 0, len(due))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, s := range parallel {
		wg.Add(1)
		go func(s *serviceState) {
			defer wg.Done()
			res := m.runCheck(ctx, s)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	for _, s := range sequential {
		results = append(results, m.runCheck(ctx, s))
	}

	out := CheckAllResult{Results: results}
	for _, r := range results {
		if r.Status == StatusDown {
			out.DownServices = append(out.DownServices, r.Service)
		}
	}

	out.CorrelatedFailure = len(out.DownServices) >= m.correlatedThreshold()

	m.mu.Lock()
	for _, s := range due {
		for _, r := range results {
			if r.Service != s.cfg.Name {
				continue
			}
			if r.Status == StatusDown {
				s.consecutiveFails++
				if s.consecutiveFails == m.alertThreshold() {
					out.NewlyAlerting = append(out.NewlyAlerting, s.cfg.Name)
				}
			} else {
				s.consecutiveFails = 0
			}
			s.lastResult = r
		}
	}
	if !out.CorrelatedFailure && autoRestartAutonomy(autonomyLevel) {
		for _, s := range due {
			if s.consecutiveFails >= m.alertThreshold() && m.restartableLocked(s) && m.budgetAvailableLocked(s) {
				out.RestartCandidates = append(out.RestartCandidates, s.cfg.Name)
			}
		}
	}
	m.mu.Unlock()

	return out
}

func autoRestartAutonomy(level string) bool {
	return level == "moderate" || level == "full"
}

func (m *Monitor) dueLocked() []*serviceState {
	now := time.Now()
	var due []*serviceState
	for _, s := range m.services {
		interval := time.Duration(s.cfg.IntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = 30 * time.Second
		}
		if now.Sub(s.lastChecked) >= interval {
			s.lastChecked = now
			due = append(due, s)
		}
	}
	return due
}

func (m *Monitor) alertThreshold() int {
	if m.cfg.ConsecutiveFailsBeforeAlert <= 0 {
		return 3
	}
	return m.cfg.ConsecutiveFailsBeforeAlert
}

func (m *Monitor) correlatedThreshold() int {
	if m.cfg.CorrelatedFailureThreshold <= 0 {
		return 3
	}
	return m.cfg.CorrelatedFailureThreshold
}

func (m *Monitor) restartableLocked(s *serviceState) bool {
	switch s.cfg.Type {
	case "process":
		return s.cfg.LaunchLabel != ""
	case "docker":
		return len(s.cfg.Containers) > 0
	default:
		return false
	}
}

func (m *Monitor) budgetAvailableLocked(s *serviceState) bool {
	maxPerHour := m.budget.MaxPerHour
	if maxPerHour <= 0 {
		maxPerHour = 2
	}
	cutoff := time.Now().Add(-1 * time.Hour)
	kept := s.restartTimes[:0]
	for _, t := range s.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restartTimes = kept
	return len(s.restartTimes) < maxPerHour
}

// RecordRestart marks that service was just restarted, consuming one
// budget slot.
func (m *Monitor) RecordRestart(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.services {
		if s.cfg.Name == service {
			s.restartTimes = append(s.restartTimes, time.Now())
			return
		}
	}
}

func (m *Monitor) runCheck(ctx context.Context, s *serviceState) CheckResult {
	timeout := time.Duration(s.cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	var res CheckResult
	switch s.cfg.Type {
	case "http":
		res = m.checkHTTP(checkCtx, s.cfg)
	case "tcp":
		res = m.checkTCP(checkCtx, s.cfg)
	case "process":
		res = m.checkProcess(checkCtx, s.cfg)
	case "docker":
		res = m.checkDocker(checkCtx, s.cfg)
	default:
		res = CheckResult{Service: s.cfg.Name, Status: StatusDown, Detail: "unknown service type", CheckedAt: time.Now()}
	}
	if m.metrics != nil {
		m.metrics.HealthCheckObserved(s.cfg.Name, string(res.Status), time.Since(started).Seconds())
	}
	return res
}

// CheckOne re-runs a single named service's check immediately, ignoring
// its configured interval. Used for the non-blocking post-restart
// verification spec §4.5 requires 30 seconds after a restart dispatch.
// Returns ok=false if service is unknown.
func (m *Monitor) CheckOne(ctx context.Context, service string) (CheckResult, bool) {
	m.mu.Lock()
	var target *serviceState
	for _, s := range m.services {
		if s.cfg.Name == service {
			target = s
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return CheckResult{}, false
	}

	res := m.runCheck(ctx, target)

	m.mu.Lock()
	target.lastChecked = time.Now()
	target.lastResult = res
	if res.Status == StatusDown {
		target.consecutiveFails++
	} else {
		target.consecutiveFails = 0
	}
	m.mu.Unlock()

	return res, true
}

// Restart dispatches the platform-appropriate restart command for
// service (spec §4.5: "launchctl kickstart -kp" for process-type
// services, a container-runtime restart for docker-type services),
// consuming one budget slot via RecordRestart regardless of outcome —
// a failed restart attempt still counts against the hourly cap so a
// wedged service can't retry indefinitely.
func (m *Monitor) Restart(ctx context.Context, service string) error {
	m.mu.Lock()
	var target *serviceState
	for _, s := range m.services {
		if s.cfg.Name == service {
			target = s
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return fmt.Errorf("health: unknown service %q", service)
	}

	var err error
	switch target.cfg.Type {
	case "process":
		if target.cfg.LaunchLabel == "" {
			err = fmt.Errorf("health: service %q has no launchLabel, not restartable", service)
		} else {
			err = exec.CommandContext(ctx, "launchctl", "kickstart", "-kp", "system/"+target.cfg.LaunchLabel).Run()
		}
	case "docker":
		if len(target.cfg.Containers) == 0 {
			err = fmt.Errorf("health: service %q has no containers, not restartable", service)
		} else {
			err = exec.CommandContext(ctx, "docker", "restart", target.cfg.Containers[0]).Run()
		}
	default:
		err = fmt.Errorf("health: service %q type %q is not restartable", service, target.cfg.Type)
	}

	m.RecordRestart(service)

	if m.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.metrics.HealthRestartAttempted(service, outcome)
	}
	if err != nil {
		m.log.Warnw("restart dispatch failed", "service", service, "error", err)
	} else {
		m.log.Infow("restart dispatched", "service", service)
	}
	return err
}

// checkHTTP treats any response — including 4xx/5xx — as UP (spec §4.5
// "a running service that returns 404 on / is still running").
func (m *Monitor) checkHTTP(ctx context.Context, svc config.ServiceCheck) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return CheckResult{Service: svc.Name, Status: StatusDown, Detail: err.Error(), CheckedAt: time.Now()}
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return CheckResult{Service: svc.Name, Status: StatusDown, Detail: err.Error(), CheckedAt: time.Now()}
	}
	resp.Body.Close()
	return CheckResult{Service: svc.Name, Status: StatusUp, Detail: fmt.Sprintf("http %d", resp.StatusCode), CheckedAt: time.Now()}
}

func (m *Monitor) checkTCP(ctx context.Context, svc config.ServiceCheck) CheckResult {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", svc.Host, svc.Port))
	if err != nil {
		return CheckResult{Service: svc.Name, Status: StatusDown, Detail: err.Error(), CheckedAt: time.Now()}
	}
	conn.Close()
	return CheckResult{Service: svc.Name, Status: StatusUp, CheckedAt: time.Now()}
}

// checkProcess parses a launch-agent listing for a PID line; DOWN iff
// no PID appears (spec §4.5).
func (m *Monitor) checkProcess(ctx context.Context, svc config.ServiceCheck) CheckResult {
	out, err := exec.CommandContext(ctx, "launchctl", "list", svc.LaunchLabel).CombinedOutput()
	if err != nil {
		return CheckResult{Service: svc.Name, Status: StatusDown, Detail: "launchctl list failed", CheckedAt: time.Now()}
	}
	if hasPIDLine(string(out)) {
		return CheckResult{Service: svc.Name, Status: StatusUp, CheckedAt: time.Now()}
	}
	return CheckResult{Service: svc.Name, Status: StatusDown, Detail: "no PID line", CheckedAt: time.Now()}
}

func hasPIDLine(listing string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] != "-" {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				return true
			}
		}
	}
	return false
}

// checkDocker parses a `ps --format` listing; DOWN iff any declared
// container is absent or its status does not start with "Up" (spec
// §4.5).
func (m *Monitor) checkDocker(ctx context.Context, svc config.ServiceCheck) CheckResult {
	out, err := exec.CommandContext(ctx, "docker", "ps", "--format", "{{.Names}}\t{{.Status}}").CombinedOutput()
	if err != nil {
		return CheckResult{Service: svc.Name, Status: StatusDown, Detail: "docker ps failed", CheckedAt: time.Now()}
	}
	statusByName := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) == 2 {
			statusByName[parts[0]] = parts[1]
		}
	}
	for _, name := range svc.Containers {
		status, ok := statusByName[name]
		if !ok || !strings.HasPrefix(status, "Up") {
			return CheckResult{Service: svc.Name, Status: StatusDown, Detail: fmt.Sprintf("%s not up", name), CheckedAt: time.Now()}
		}
	}
	return CheckResult{Service: svc.Name, Status: StatusUp, CheckedAt: time.Now()}
}
