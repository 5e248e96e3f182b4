package neighbor

import (
	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/grid"
)

// DrainReport summarizes one completed drain.
type DrainReport struct {
	Origin   grid.Pos
	Admitted int
	Dropped  int
	Failed   int

	// FirstDropped is set when the chain cutoff was hit.
	FirstDropped *grid.Pos
}

// Reporter receives a report after every drain.
type Reporter interface {
	ReportDrain(DrainReport)
}

type ReporterFunc func(DrainReport)

func (f ReporterFunc) ReportDrain(r DrainReport) { f(r) }

// Reporters fans a report out to every non-nil reporter in order.
func Reporters(rs ...Reporter) Reporter {
	var live []Reporter
	for _, r := range rs {
		if r != nil {
			live = append(live, r)
		}
	}
	return ReporterFunc(func(rep DrainReport) {
		for _, r := range live {
			r.ReportDrain(rep)
		}
	})
}

type Option func(*options)

type options struct {
	log      logrus.FieldLogger
	reporter Reporter
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

func buildOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// isolate runs fn, converting a panic into a logged failure.
func isolate(log logrus.FieldLogger, k kind, pos grid.Pos, fn func()) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			log.WithFields(logrus.Fields{
				"kind":  k.String(),
				"pos":   pos.String(),
				"panic": r,
			}).Error("neighbor update failed")
		}
	}()
	fn()
	return false
}
