package framer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
)

// DriftEpsilon is the largest lag between output and input timestamps that
// is accepted silently. Re-framing arbitrary chunks into 20 ms frames makes
// the lag oscillate between roughly 2 and 22 ms in steady state.
const DriftEpsilon = 30 * time.Millisecond

// DriftKind classifies a timestamp anomaly.
type DriftKind int

const (
	DriftNone DriftKind = iota

	// DriftOverlap means output started before the input that produced it.
	DriftOverlap

	// DriftLag means output trails input by more than [DriftEpsilon].
	DriftLag

	// DriftGap means input resumed ahead of the running cursor while no bytes
	// were pending, i.e. the input stream skipped time.
	DriftGap
)

// String returns the lower-case kind name used in logs and metric attributes.
func (k DriftKind) String() string {
	switch k {
	case DriftNone:
		return "none"
	case DriftOverlap:
		return "overlap"
	case DriftLag:
		return "lag"
	case DriftGap:
		return "gap"
	}
	return fmt.Sprintf("DriftKind(%d)", int(k))
}

// DriftWarning describes one timestamp anomaly. It is purely observational:
// nothing in this package changes frame contents or timing because of it.
type DriftWarning struct {
	Kind   DriftKind
	Output audio.PTS
	Input  audio.PTS

	// Diff is Output - Input.
	Diff time.Duration
}

// Error implements error so warnings can be logged and joined like errors.
func (w *DriftWarning) Error() string {
	switch w.Kind {
	case DriftOverlap:
		return fmt.Sprintf("framer: output pts %s overlaps input pts %s by %s", w.Output, w.Input, -w.Diff)
	case DriftLag:
		return fmt.Sprintf("framer: output pts %s lags input pts %s by %s (epsilon %s)", w.Output, w.Input, w.Diff, DriftEpsilon)
	case DriftGap:
		return fmt.Sprintf("framer: input pts %s jumped %s ahead of cursor %s", w.Input, -w.Diff, w.Output)
	}
	return fmt.Sprintf("framer: pts drift %s (output %s, input %s)", w.Diff, w.Output, w.Input)
}

// CheckPTS compares the timestamp of the first output of an encode step with
// the input timestamp that triggered it. It returns nil when either is
// unknown or when 0 <= output-input <= [DriftEpsilon].
func CheckPTS(output, input audio.PTS) *DriftWarning {
	diff, ok := output.Sub(input)
	if !ok {
		return nil
	}
	var kind DriftKind
	switch {
	case diff < 0:
		kind = DriftOverlap
	case diff > DriftEpsilon:
		kind = DriftLag
	default:
		return nil
	}
	return &DriftWarning{Kind: kind, Output: output, Input: input, Diff: diff}
}

// Reporter receives drift warnings.
type Reporter interface {
	ReportDrift(w *DriftWarning)
}

// ReporterFunc adapts a function to [Reporter].
type ReporterFunc func(w *DriftWarning)

// ReportDrift implements [Reporter].
func (f ReporterFunc) ReportDrift(w *DriftWarning) { f(w) }

// LogReporter logs drift warnings at warn level.
type LogReporter struct {
	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger

	// Stream is added as the "stream" attribute when non-empty.
	Stream string
}

// ReportDrift implements [Reporter].
func (r LogReporter) ReportDrift(w *DriftWarning) {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	if r.Stream != "" {
		l = l.With("stream", r.Stream)
	}
	l.Warn("framer: pts drift",
		"kind", w.Kind.String(),
		"input_pts", w.Input.String(),
		"output_pts", w.Output.String(),
		"diff", w.Diff,
	)
}

// Reporters fans a warning out to several reporters.
type Reporters []Reporter

// ReportDrift implements [Reporter].
func (rs Reporters) ReportDrift(w *DriftWarning) {
	for _, r := range rs {
		if r != nil {
			r.ReportDrift(w)
		}
	}
}
