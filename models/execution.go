package models

import (
	"fmt"
	"strconv"
	"time"
)

// StopReason records why a session ended.
type StopReason string

const (
	StopManual    StopReason = "manual"
	StopEmergency StopReason = "emergency"
	StopFailsafe  StopReason = "failsafe"
	StopLimits    StopReason = "limits_reached"
	StopCompleted StopReason = "completed"
	StopError     StopReason = "error"
)

// ExecutionLog is the record of one session. It is finalized exactly once
// when the session ends and is read-only afterwards.
type ExecutionLog struct {
	ID                string     `json:"id"`
	ProfileID         string     `json:"profile_id"`
	ProfileName       string     `json:"profile_name"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	TotalClicks       int        `json:"total_clicks"`
	TotalSteps        int        `json:"total_steps"`
	AverageIntervalMS *float64   `json:"average_interval_ms,omitempty"`
	StoppedBy         StopReason `json:"stopped_by"`
	ErrorMessage      string     `json:"error_message,omitempty"`

	// Detached is set when the worker did not exit within the stop grace
	// period and was abandoned.
	Detached bool `json:"detached,omitempty"`
}

// Finalize stamps the end of the session. The average interval is derived
// from the wall time and the number of actions performed.
func (l *ExecutionLog) Finalize(end time.Time, clicks, steps int, reason StopReason, errMsg string) {
	l.EndTime = &end
	l.TotalClicks = clicks
	l.TotalSteps = steps
	l.StoppedBy = reason
	l.ErrorMessage = errMsg
	if actions := clicks + steps; actions > 0 {
		avg := float64(end.Sub(l.StartTime).Microseconds()) / 1000 / float64(actions)
		l.AverageIntervalMS = &avg
	}
}

func (l *ExecutionLog) Finalized() bool {
	return l.EndTime != nil
}

func (l *ExecutionLog) Duration() time.Duration {
	if l.EndTime == nil {
		return 0
	}
	return l.EndTime.Sub(l.StartTime)
}

var CSVHeader = []string{
	"ID", "Profile Name", "Start Time", "End Time",
	"Total Clicks", "Total Steps", "Average Interval (ms)",
	"Duration (s)", "Stopped By", "Error Message",
}

func (l *ExecutionLog) CSVRow() []string {
	end, duration, avg := "", "", ""
	if l.EndTime != nil {
		end = l.EndTime.Format(time.RFC3339)
		duration = strconv.FormatFloat(l.Duration().Seconds(), 'f', 3, 64)
	}
	if l.AverageIntervalMS != nil {
		avg = fmt.Sprintf("%.2f", *l.AverageIntervalMS)
	}
	return []string{
		l.ID,
		l.ProfileName,
		l.StartTime.Format(time.RFC3339),
		end,
		strconv.Itoa(l.TotalClicks),
		strconv.Itoa(l.TotalSteps),
		avg,
		duration,
		string(l.StoppedBy),
		l.ErrorMessage,
	}
}
