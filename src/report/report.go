// Package report turns a finished run into a human summary and a failure
// file that a later run can retry from.
package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/parser"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Summary is the end-of-run digest.
type Summary struct {
	RunID        string
	Mode         string
	Counts       map[domain.OutcomeKind]int64
	Batches      []parser.BatchResult
	UploadErrors []parser.UploadFailure
	Elapsed      time.Duration
	MemoryBytes  uint64
}

func NewSummary(runID, mode string, res *parser.Result) Summary {
	return Summary{
		RunID: runID,
		Mode:  mode,
		Counts: map[domain.OutcomeKind]int64{
			domain.OutcomeOK:         res.Stats.OK,
			domain.OutcomeNotFound:   res.Stats.NotFound,
			domain.OutcomeLoadError:  res.Stats.LoadError,
			domain.OutcomeParseError: res.Stats.ParseError,
		},
		Batches:      res.Batches,
		UploadErrors: res.UploadErrors,
		Elapsed:      res.Stats.Elapsed,
		MemoryBytes:  res.Stats.MemoryBytes,
	}
}

var countOrder = []domain.OutcomeKind{
	domain.OutcomeOK,
	domain.OutcomeNotFound,
	domain.OutcomeLoadError,
	domain.OutcomeParseError,
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "h2h %s run %s finished in %s\n", s.Mode, s.RunID, s.Elapsed.Round(time.Second))

	counts := make([]string, 0, len(countOrder))
	for _, k := range countOrder {
		counts = append(counts, fmt.Sprintf("%s: %s", k, humanize.Comma(s.Counts[k])))
	}
	b.WriteString(strings.Join(counts, "  "))
	b.WriteString("\n")

	for _, br := range s.Batches {
		failed := 0
		for _, f := range br.Failures {
			failed += len(f)
		}
		fmt.Fprintf(&b, "[%s] ids=%d non_positive=%d positive=%d failed=%d\n",
			br.Label, br.IDs, br.NonPositive, br.Positive, failed)
	}

	if len(s.UploadErrors) > 0 {
		fmt.Fprintf(&b, "upload errors: %d\n", len(s.UploadErrors))
		for _, u := range s.UploadErrors {
			fmt.Fprintf(&b, "  [%s %d..%d] %s: %d rows, stopped at %d, %d unwritten: %v\n",
				u.Label, u.StartID, u.EndID, u.Sheet, u.Rows, u.Offset, len(u.Pending), u.Err)
		}
	}

	fmt.Fprintf(&b, "memory: %s", humanize.Bytes(s.MemoryBytes))
	return b.String()
}

// Entry is one failed match in the failure file.
type Entry struct {
	MatchID int64  `yaml:"match_id"`
	Kind    string `yaml:"kind"`
	URL     string `yaml:"url"`
	Reason  string `yaml:"reason"`
	Stage   string `yaml:"stage,omitempty"`
}

// UploadEntry is one failed upload in the failure file.
type UploadEntry struct {
	Label      string  `yaml:"label"`
	StartID    int64   `yaml:"start_id"`
	EndID      int64   `yaml:"end_id"`
	Sheet      string  `yaml:"sheet"`
	Rows       int     `yaml:"rows"`
	Offset     int     `yaml:"offset"`
	PendingIDs []int64 `yaml:"pending_ids,flow"`
	Error      string  `yaml:"error"`
}

// Report is the failure file of a run.
type Report struct {
	RunID        string        `yaml:"run_id"`
	GeneratedAt  time.Time     `yaml:"generated_at"`
	Failures     []Entry       `yaml:"failures"`
	UploadErrors []UploadEntry `yaml:"upload_errors,omitempty"`
}

func NewReport(runID string, res *parser.Result, now time.Time) Report {
	r := Report{RunID: runID, GeneratedAt: now.UTC(), Failures: []Entry{}}
	for _, f := range res.Failures {
		r.Failures = append(r.Failures, Entry{
			MatchID: int64(f.MatchID),
			Kind:    f.Kind.String(),
			URL:     f.URL,
			Reason:  f.Reason,
			Stage:   f.Stage,
		})
	}
	for _, u := range res.UploadErrors {
		pending := make([]int64, len(u.Pending))
		for i, id := range u.Pending {
			pending[i] = int64(id)
		}
		r.UploadErrors = append(r.UploadErrors, UploadEntry{
			Label:      u.Label,
			StartID:    int64(u.StartID),
			EndID:      int64(u.EndID),
			Sheet:      u.Sheet,
			Rows:       u.Rows,
			Offset:     u.Offset,
			PendingIDs: pending,
			Error:      u.Err.Error(),
		})
	}
	return r
}

func (r Report) WriteFile(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// LoadRetryIDs reads a failure file and returns the ids worth retrying:
// load and parse errors, then the ids of rows that never reached the sink,
// in file order without duplicates. Not-found ids are skipped since
// retrying them cannot help.
func LoadRetryIDs(path string) ([]domain.MatchID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read retry file: %w", err)
	}

	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse retry file: %w", err)
	}

	retryable := map[string]bool{
		domain.OutcomeLoadError.String():  true,
		domain.OutcomeParseError.String(): true,
	}
	seen := make(map[int64]bool)
	var ids []domain.MatchID
	for _, e := range r.Failures {
		if !retryable[e.Kind] || seen[e.MatchID] {
			continue
		}
		seen[e.MatchID] = true
		ids = append(ids, domain.MatchID(e.MatchID))
	}
	for _, u := range r.UploadErrors {
		for _, id := range u.PendingIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, domain.MatchID(id))
		}
	}
	return ids, nil
}
