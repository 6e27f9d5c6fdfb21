package parser

import (
	"runtime"
	"sync/atomic"
	"time"

	"mxshs/h2hcrawler/src/domain"
)

// Stats counts outcomes of a run. It is safe for concurrent use.
type Stats struct {
	started time.Time

	total      atomic.Int64
	processed  atomic.Int64
	ok         atomic.Int64
	notFound   atomic.Int64
	loadError  atomic.Int64
	parseError atomic.Int64
}

func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// AddTotal grows the number of ids the run expects to process.
func (s *Stats) AddTotal(n int) {
	s.total.Add(int64(n))
}

func (s *Stats) Record(out domain.Outcome) {
	s.processed.Add(1)
	switch out.Kind {
	case domain.OutcomeOK:
		s.ok.Add(1)
	case domain.OutcomeNotFound:
		s.notFound.Add(1)
	case domain.OutcomeLoadError:
		s.loadError.Add(1)
	case domain.OutcomeParseError:
		s.parseError.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Total       int64         `json:"total"`
	Processed   int64         `json:"processed"`
	OK          int64         `json:"ok"`
	NotFound    int64         `json:"not_found"`
	LoadError   int64         `json:"load_error"`
	ParseError  int64         `json:"parse_error"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	MemoryBytes uint64        `json:"memory_bytes"`
}

// Failures is the number of processed ids that did not produce a row.
func (s Snapshot) Failures() int64 {
	return s.NotFound + s.LoadError + s.ParseError
}

func (s *Stats) Snapshot() Snapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Snapshot{
		Total:       s.total.Load(),
		Processed:   s.processed.Load(),
		OK:          s.ok.Load(),
		NotFound:    s.notFound.Load(),
		LoadError:   s.loadError.Load(),
		ParseError:  s.parseError.Load(),
		Elapsed:     time.Since(s.started),
		MemoryBytes: m.Sys,
	}
}
