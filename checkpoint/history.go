package checkpoint

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// Record describes one checkpoint file known to the manager.
type Record struct {
	Path      string             `json:"path"`
	Step      int                `json:"step"`
	Epoch     int                `json:"epoch"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp string             `json:"timestamp"`
}

func (r Record) clone() Record {
	out := r
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

// History is a snapshot of the manager's bookkeeping.
type History struct {
	Records []Record
	// BestMetric is +Inf (minimize) or -Inf (maximize) until a best is recorded.
	BestMetric         float64
	BestCheckpointPath string
	MetricForBest      string
	MinimizeMetric     bool
}

// jsonFloat encodes non-finite values as the strings "NaN", "Infinity" and
// "-Infinity", which encoding/json rejects as numbers.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "Infinity":
			*f = jsonFloat(math.Inf(1))
		case "-Infinity":
			*f = jsonFloat(math.Inf(-1))
		default:
			return errors.Newf("invalid number %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type recordJSON struct {
	Path      string               `json:"path"`
	Step      int                  `json:"step"`
	Epoch     int                  `json:"epoch"`
	Metrics   map[string]jsonFloat `json:"metrics"`
	Timestamp string               `json:"timestamp"`
}

// historyFile is the on-disk layout of checkpoint_history.json.
type historyFile struct {
	CheckpointHistory  []recordJSON `json:"checkpoint_history"`
	BestMetric         *jsonFloat   `json:"best_metric"`
	BestCheckpointPath *string      `json:"best_checkpoint_path"`
	MetricForBest      string       `json:"metric_for_best"`
	MinimizeMetric     bool         `json:"minimize_metric"`
}

func encodeHistory(h History) ([]byte, error) {
	out := historyFile{
		CheckpointHistory: make([]recordJSON, 0, len(h.Records)),
		MetricForBest:     h.MetricForBest,
		MinimizeMetric:    h.MinimizeMetric,
	}
	for _, r := range h.Records {
		metrics := make(map[string]jsonFloat, len(r.Metrics))
		for k, v := range r.Metrics {
			metrics[k] = jsonFloat(v)
		}
		out.CheckpointHistory = append(out.CheckpointHistory, recordJSON{
			Path:      r.Path,
			Step:      r.Step,
			Epoch:     r.Epoch,
			Metrics:   metrics,
			Timestamp: r.Timestamp,
		})
	}
	if h.BestCheckpointPath != "" {
		best := jsonFloat(h.BestMetric)
		path := h.BestCheckpointPath
		out.BestMetric = &best
		out.BestCheckpointPath = &path
	}
	return json.MarshalIndent(&out, "", "  ")
}

// decodeHistory parses a history file. Missing best fields leave BestMetric
// at the worst value for the given direction.
func decodeHistory(data []byte, minimize bool) (History, error) {
	var in historyFile
	if err := json.Unmarshal(data, &in); err != nil {
		return History{}, err
	}
	h := History{
		BestMetric:     worstMetric(minimize),
		MetricForBest:  in.MetricForBest,
		MinimizeMetric: in.MinimizeMetric,
	}
	for i, r := range in.CheckpointHistory {
		if r.Path == "" {
			return History{}, errors.Newf("record %d has no path", i)
		}
		metrics := make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			metrics[k] = float64(v)
		}
		h.Records = append(h.Records, Record{
			Path:      r.Path,
			Step:      r.Step,
			Epoch:     r.Epoch,
			Metrics:   metrics,
			Timestamp: r.Timestamp,
		})
	}
	if in.BestMetric != nil {
		h.BestMetric = float64(*in.BestMetric)
	}
	if in.BestCheckpointPath != nil {
		h.BestCheckpointPath = *in.BestCheckpointPath
	}
	return h, nil
}

// ReadHistory reads the history file of dir as it was persisted. No Manager
// options are applied, so MetricForBest and MinimizeMetric are those of the run
// that wrote the file. Records whose files are gone are kept.
func ReadHistory(dir string) (History, error) {
	data, err := os.ReadFile(filepath.Join(dir, HistoryFileName))
	if err != nil {
		return History{}, errors.Wrapf(err, "failed to read checkpoint history in %s", dir)
	}
	h, err := decodeHistory(data, true)
	if err != nil {
		return History{}, errors.Wrapf(err, "failed to decode checkpoint history in %s", dir)
	}
	if h.BestCheckpointPath == "" {
		h.BestMetric = worstMetric(h.MinimizeMetric)
	}
	return h, nil
}

// writeFileAtomic replaces path with data via a temporary file and rename.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func worstMetric(minimize bool) float64 {
	if minimize {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

func sortByStepDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Step > records[j].Step })
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
