package datarecording

import (
	"os"
	"strings"
	"time"
)

const execTable = "exec_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a recorded run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecRecorder records what was run, when, and with which settings.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the exec_info table on the recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(execTable, ExecInfo{})

	return &ExecRecorder{recorder: recorder}
}

// Start notes the start time and the command line.
func (e *ExecRecorder) Start() {
	e.entries = append(e.entries,
		ExecInfo{"Start Time", time.Now().Format(timeLayout)},
		ExecInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, ExecInfo{"Working Directory", cwd})
	}
}

// Set notes an extra property of the run.
func (e *ExecRecorder) Set(property, value string) {
	e.entries = append(e.entries, ExecInfo{property, value})
}

// End writes every property along with the end time.
func (e *ExecRecorder) End() {
	e.entries = append(e.entries,
		ExecInfo{"End Time", time.Now().Format(timeLayout)})

	for _, entry := range e.entries {
		e.recorder.InsertData(execTable, entry)
	}

	e.entries = nil
	e.recorder.Flush()
}
