// Package monitoring turns a running actuation loop into an HTTP server that
// reports session status and loop state and lets an operator pause the loop.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/actuation/session"
	"github.com/sarchlab/actuation/timing"
)

// Engine is the simulated engine a monitor can pause.
type Engine interface {
	Pause()
	Continue()
	CurrentTime() timing.VTimeInCycle
}

// Monitor serves the status of the registered sessions.
type Monitor struct {
	engine      Engine
	sessions    []*session.Session
	gatherer    prometheus.Gatherer
	portNumber  int
	openBrowser bool
	logger      *slog.Logger

	server *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{logger: slog.Default()}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.logger.Warn("monitor port not allowed, using a random port",
			"port", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor in the default browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger *slog.Logger) *Monitor {
	m.logger = logger
	return m
}

// WithGatherer exposes the given metrics on /metrics.
func (m *Monitor) WithGatherer(g prometheus.Gatherer) *Monitor {
	m.gatherer = g
	return m
}

// RegisterEngine registers the engine that drives the sessions.
func (m *Monitor) RegisterEngine(e Engine) {
	m.engine = e
}

// RegisterSession adds a session to the monitor.
func (m *Monitor) RegisterSession(s *session.Session) {
	m.sessions = append(m.sessions, s)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the monitor.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	for i, b := range m.progressBars {
		if b == pb {
			m.progressBars = append(m.progressBars[:i], m.progressBars[i+1:]...)
			return
		}
	}
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.continueRun)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/sessions", m.listSessions)
	r.HandleFunc("/api/session/{name}", m.sessionStatus)
	r.HandleFunc("/api/session/{name}/state", m.sessionState)
	r.HandleFunc("/api/field/{json}", m.fieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	if m.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	addr := ":0"
	if m.portNumber > 0 {
		addr = fmt.Sprintf(":%d", m.portNumber)
	}

	listener, err := net.Listen("tcp", addr)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.logger.Info("monitoring actuation loop", "url", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.logger.Warn("cannot open browser", "error", err)
		}
	}

	return url
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	if m.engine != nil {
		m.engine.Pause()
	}

	for _, s := range m.sessions {
		s.Pause()
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueRun(w http.ResponseWriter, _ *http.Request) {
	for _, s := range m.sessions {
		s.Continue()
	}

	if m.engine != nil {
		m.engine.Continue()
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if m.engine == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	fmt.Fprintf(w, "{\"now\":%d}", m.engine.CurrentTime())
}

func (m *Monitor) listSessions(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := sessionsParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	statuses := make([]session.Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		statuses = append(statuses, s.Status())
	}

	statuses = sortAndSelectStatuses(statuses, sortMethod, limit, offset)

	writeJSON(w, statuses)
}

func sessionsParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "name"
	}

	if sortMethod != "name" && sortMethod != "tick" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `name` and `tick`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return sortMethod, limit, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, key string) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return n, nil
}

// sortAndSelectStatuses orders the statuses and returns the page selected by
// offset and limit. A zero limit selects everything after offset.
func sortAndSelectStatuses(
	statuses []session.Status,
	sortMethod string,
	limit, offset int,
) []session.Status {
	switch sortMethod {
	case "tick":
		sort.SliceStable(statuses, func(i, j int) bool {
			if statuses[i].TickIndex != statuses[j].TickIndex {
				return statuses[i].TickIndex > statuses[j].TickIndex
			}

			return statuses[i].Name < statuses[j].Name
		})
	default:
		sort.SliceStable(statuses, func(i, j int) bool {
			return statuses[i].Name < statuses[j].Name
		})
	}

	if offset > len(statuses) {
		offset = len(statuses)
	}

	end := len(statuses)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return statuses[offset:end]
}

func (m *Monitor) findSessionOr404(
	w http.ResponseWriter,
	name string,
) *session.Session {
	for _, s := range m.sessions {
		if s.Name() == name {
			return s
		}
	}

	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "session %s not found", name)

	return nil
}

func (m *Monitor) sessionStatus(w http.ResponseWriter, r *http.Request) {
	s := m.findSessionOr404(w, mux.Vars(r)["name"])
	if s == nil {
		return
	}

	writeJSON(w, s.Status())
}

func (m *Monitor) sessionState(w http.ResponseWriter, r *http.Request) {
	s := m.findSessionOr404(w, mux.Vars(r)["name"])
	if s == nil {
		return
	}

	state := s.LoopState()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&state)
	serializer.SetMaxDepth(2)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type fieldReq struct {
	Session   string `json:"session,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil || req.FieldName == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s := m.findSessionOr404(w, req.Session)
	if s == nil {
		return
	}

	state := s.LoopState()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&state)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	var buf bytes.Buffer
	err = serializer.Serialize(&buf)
	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]ProgressBarStatus, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.Status())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()

	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	ms, err := intParam(r, "ms")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	if ms == 0 {
		ms = 1000
	}

	buf := bytes.NewBuffer(nil)

	err = pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(time.Duration(ms) * time.Millisecond)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	rsp, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(rsp)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
