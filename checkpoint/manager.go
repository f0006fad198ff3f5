// Package checkpoint persists and restores training state.
//
// A Manager owns one directory. Every Save writes
// checkpoint_step_{step}_epoch_{epoch}.ckpt, optionally promotes it to
// best_checkpoint.ckpt, evicts old checkpoints and rewrites
// checkpoint_history.json, which is the recovery point after a restart.
//
//	mgr, err := checkpoint.NewManager("runs/hyena/ckpt",
//	    checkpoint.WithMaxCheckpoints(3),
//	    checkpoint.WithMetricForBest("val_loss"),
//	)
//	path, err := mgr.Save(net, step, epoch, map[string]float64{"val_loss": loss},
//	    checkpoint.WithOptimizer(opt),
//	)
//
// A Manager is not safe for concurrent use, and two managers must not share a
// directory.
package checkpoint

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/genotrain/core/model"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

const (
	// BestFileName is the fixed name of the best checkpoint copy.
	BestFileName = "best_checkpoint.ckpt"
	// HistoryFileName is the fixed name of the history file.
	HistoryFileName = "checkpoint_history.json"
	// FileExt is the extension of checkpoint files.
	FileExt = ".ckpt"
)

// FileName returns the checkpoint file name for a step and epoch.
func FileName(step, epoch int) string {
	return fmt.Sprintf("checkpoint_step_%d_epoch_%d%s", step, epoch, FileExt)
}

// Manager manages the checkpoints of one directory.
type Manager struct {
	dir    string
	opts   options
	logger log.Logger

	records    []Record
	bestMetric float64
	bestPath   string
}

// NewManager creates dir if needed and restores the history found there. An
// unreadable history is logged and replaced by an empty one.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create checkpoint directory %s", dir)
	}
	m := &Manager{
		dir:        dir,
		opts:       o,
		logger:     o.logger.With(log.ComponentKey, "checkpoint", log.CheckpointDirKey, dir),
		bestMetric: worstMetric(o.minimize),
	}
	m.loadHistory()
	return m, nil
}

// Dir returns the managed directory.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) historyPath() string { return filepath.Join(m.dir, HistoryFileName) }

func (m *Manager) bestFilePath() string { return filepath.Join(m.dir, BestFileName) }

func (m *Manager) loadHistory() {
	data, err := os.ReadFile(m.historyPath())
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("Failed to read checkpoint history", log.ErrAttrKey, err.Error())
		}
		return
	}
	h, err := decodeHistory(data, m.opts.minimize)
	if err != nil {
		m.logger.Warn("Failed to load checkpoint history", log.ErrAttrKey, err.Error())
		return
	}
	m.bestMetric = h.BestMetric
	m.bestPath = h.BestCheckpointPath
	m.records = existingRecords(h.Records)
	m.logger.Info("Loaded checkpoint history", "checkpoints", len(m.records))
}

func existingRecords(records []Record) []Record {
	out := records[:0:0]
	for _, r := range records {
		if fileExists(r.Path) {
			out = append(out, r)
		}
	}
	return out
}

// capture collects state from the collaborators. A panicking StateDict is
// returned as a PanicError instead of crashing the training loop.
func (m *Manager) capture(module model.StateSaver, so saveOptions, h Header) (payload *Payload, err error) {
	defer errors.Recover(&err, "checkpoint.capture")

	payload = &Payload{
		Header:     h,
		ModelState: module.StateDict(),
		ExtraData:  so.extra,
	}
	if payload.ExtraData == nil {
		payload.ExtraData = map[string]interface{}{}
	}
	if so.optimizer != nil && m.opts.saveOptimizer {
		payload.OptimizerState = so.optimizer.StateDict()
	}
	if so.scheduler != nil && m.opts.saveScheduler {
		if saver, ok := so.scheduler.(model.StateSaver); ok {
			payload.SchedulerState = saver.StateDict()
		}
	}
	return payload, nil
}

// Save writes a checkpoint of module and returns its path. Optimizer and
// scheduler state is captured when supplied and enabled. Any I/O failure is
// returned; the history is only rewritten once the checkpoint is on disk.
func (m *Manager) Save(module model.StateSaver, step, epoch int, metrics map[string]float64, opts ...SaveOption) (string, error) {
	var so saveOptions
	for _, opt := range opts {
		opt(&so)
	}

	ts := m.opts.now()
	payload, err := m.capture(module, so, Header{
		Step:      step,
		Epoch:     epoch,
		Metrics:   metrics,
		Timestamp: ts,
	})
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.dir, FileName(step, epoch))
	if err := writePayload(path, payload, m.opts.compress); err != nil {
		return "", err
	}
	m.logger.Info("Saved checkpoint",
		log.OperationKey, log.OperationSave,
		log.CheckpointPathKey, path,
		log.StepKey, step,
		log.EpochKey, epoch,
	)

	rewroteBest := path == m.bestPath
	m.appendRecord(Record{
		Path:      path,
		Step:      step,
		Epoch:     epoch,
		Metrics:   cloneMetrics(metrics),
		Timestamp: ts.Format(time.RFC3339Nano),
	})

	if rewroteBest {
		err = m.reselectBest()
	} else {
		err = m.updateBest(path, metrics)
	}
	if err != nil {
		return "", err
	}
	m.cleanup()
	if err := m.saveHistory(); err != nil {
		return "", err
	}
	return path, nil
}

// appendRecord adds r, replacing an earlier record for the same file.
func (m *Manager) appendRecord(r Record) {
	kept := m.records[:0]
	for _, old := range m.records {
		if old.Path != r.Path {
			kept = append(kept, old)
		}
	}
	m.records = append(kept, r)
}

func (m *Manager) updateBest(path string, metrics map[string]float64) error {
	if !m.opts.saveBest {
		return nil
	}
	current, ok := metrics[m.opts.metricForBest]
	if !ok || math.IsNaN(current) || !m.isImprovement(current) {
		return nil
	}
	best := m.bestFilePath()
	if err := copyFile(path, best); err != nil {
		return errors.Wrapf(err, "failed to copy best checkpoint %s", best)
	}
	m.bestMetric = current
	m.bestPath = path
	m.logger.Info("New best checkpoint",
		log.CheckpointPathKey, best,
		log.MetricForBestKey, m.opts.metricForBest,
		log.BestMetricKey, current,
	)
	return nil
}

// reselectBest recomputes the best pointer from the recorded checkpoints.
// It runs when the file backing the best pointer has been rewritten, so the
// best copy and best_metric always describe the same checkpoint.
func (m *Manager) reselectBest() error {
	m.bestMetric = worstMetric(m.opts.minimize)
	m.bestPath = ""
	if !m.opts.saveBest {
		return nil
	}
	for _, r := range existingRecords(m.records) {
		v, ok := r.Metrics[m.opts.metricForBest]
		if !ok || math.IsNaN(v) || !m.isImprovement(v) {
			continue
		}
		m.bestMetric = v
		m.bestPath = r.Path
	}

	best := m.bestFilePath()
	if m.bestPath == "" {
		if err := os.Remove(best); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove stale best checkpoint %s", best)
		}
		m.logger.Warn("Best checkpoint was overwritten and no candidate remains",
			log.MetricForBestKey, m.opts.metricForBest,
		)
		return nil
	}
	if err := copyFile(m.bestPath, best); err != nil {
		return errors.Wrapf(err, "failed to copy best checkpoint %s", best)
	}
	m.logger.Info("Reselected best checkpoint",
		log.CheckpointPathKey, m.bestPath,
		log.MetricForBestKey, m.opts.metricForBest,
		log.BestMetricKey, m.bestMetric,
	)
	return nil
}

func (m *Manager) isImprovement(v float64) bool {
	if m.opts.minimize {
		return v < m.bestMetric
	}
	return v > m.bestMetric
}

// cleanup evicts the oldest checkpoints beyond maxCheckpoints. The file that
// backs the best pointer is never evicted. Removal failures are logged.
func (m *Manager) cleanup() {
	if m.opts.maxCheckpoints <= 0 {
		return
	}
	existing := existingRecords(m.records)
	sortByStepDesc(existing)
	if len(existing) > m.opts.maxCheckpoints {
		for _, r := range existing[m.opts.maxCheckpoints:] {
			if r.Path == m.bestPath {
				continue
			}
			if err := os.Remove(r.Path); err != nil {
				m.logger.Warn("Failed to delete checkpoint",
					log.CheckpointPathKey, r.Path,
					log.ErrAttrKey, err.Error(),
				)
				continue
			}
			m.logger.Info("Cleaned up old checkpoint", log.CheckpointPathKey, r.Path, log.StepKey, r.Step)
		}
	}
	m.records = existingRecords(m.records)
}

func (m *Manager) saveHistory() error {
	data, err := encodeHistory(m.History())
	if err != nil {
		return errors.Wrap(err, "failed to encode checkpoint history")
	}
	if err := writeFileAtomic(m.historyPath(), data); err != nil {
		return errors.Wrapf(err, "failed to write checkpoint history %s", m.historyPath())
	}
	return nil
}

// History returns a copy of the current bookkeeping, records in insertion order.
func (m *Manager) History() History {
	records := make([]Record, len(m.records))
	for i, r := range m.records {
		records[i] = r.clone()
	}
	return History{
		Records:            records,
		BestMetric:         m.bestMetric,
		BestCheckpointPath: m.bestPath,
		MetricForBest:      m.opts.metricForBest,
		MinimizeMetric:     m.opts.minimize,
	}
}

// LatestCheckpoint returns the highest-step checkpoint whose file exists.
func (m *Manager) LatestCheckpoint() (string, bool) {
	sorted := append([]Record(nil), m.records...)
	sortByStepDesc(sorted)
	for _, r := range sorted {
		if fileExists(r.Path) {
			return r.Path, true
		}
	}
	return "", false
}

// BestCheckpoint returns the best copy if it exists, otherwise the path the
// best pointer refers to.
func (m *Manager) BestCheckpoint() (string, bool) {
	if p := m.bestFilePath(); fileExists(p) {
		return p, true
	}
	return m.bestPath, m.bestPath != ""
}

// ListCheckpoints returns the records whose files exist, highest step first.
func (m *Manager) ListCheckpoints() []Record {
	out := existingRecords(m.History().Records)
	sortByStepDesc(out)
	return out
}

// DeleteCheckpoint removes a checkpoint file and its record. A missing file
// is not an error.
func (m *Manager) DeleteCheckpoint(path string) error {
	if !fileExists(path) {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, "failed to delete checkpoint %s", path)
	}
	m.logger.Info("Deleted checkpoint", log.OperationKey, log.OperationDelete, log.CheckpointPathKey, path)

	kept := m.records[:0]
	for _, r := range m.records {
		if r.Path != path {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return m.saveHistory()
}

// resolve maps the load arguments to an existing file.
func (m *Manager) resolve(path string, loadBest bool) (string, error) {
	switch {
	case loadBest:
		path = m.bestFilePath()
	case path == "":
		latest, ok := m.LatestCheckpoint()
		if !ok {
			return "", errors.NewCheckpointNotFoundError("")
		}
		path = latest
	}
	if !fileExists(path) {
		return "", errors.NewCheckpointNotFoundError(path)
	}
	return path, nil
}

// Load reads a checkpoint. With loadBest the best copy is read; otherwise an
// empty path selects the latest checkpoint.
func (m *Manager) Load(path string, loadBest bool) (*Payload, error) {
	resolved, err := m.resolve(path, loadBest)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Loading checkpoint", log.OperationKey, log.OperationLoad, log.CheckpointPathKey, resolved)
	return readPayload(resolved)
}

// LoadModelFromCheckpoint loads a checkpoint into module.
func (m *Manager) LoadModelFromCheckpoint(module model.Module, path string, loadBest, strict bool) (*Payload, error) {
	p, err := m.Load(path, loadBest)
	if err != nil {
		return nil, err
	}
	if p.ModelState == nil {
		m.logger.Warn("No model state found in checkpoint", log.StepKey, p.Step)
		return p, nil
	}
	res, err := module.LoadStateDict(p.ModelState, strict)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model state")
	}
	if !res.Clean() {
		m.logger.Warn("Model state loaded with mismatched keys",
			log.MissingKeysKey, res.MissingKeys,
			log.UnexpectedKeysKey, res.UnexpectedKeys,
		)
	} else {
		m.logger.Info("Loaded model state from checkpoint", log.StepKey, p.Step)
	}
	return p, nil
}

// ResumeTraining restores model, optimizer and scheduler from a checkpoint.
// optimizer may be nil. scheduler is restored only if it implements
// model.StateLoader and the checkpoint carries scheduler state.
func (m *Manager) ResumeTraining(module model.Module, optimizer model.StateLoader, scheduler interface{}, path string) (*Payload, error) {
	p, err := m.Load(path, false)
	if err != nil {
		return nil, err
	}
	if p.ModelState != nil {
		if _, err := module.LoadStateDict(p.ModelState, true); err != nil {
			return nil, errors.Wrap(err, "failed to resume model state")
		}
		m.logger.Info("Resumed model state from checkpoint", log.StepKey, p.Step)
	}
	if optimizer != nil && p.OptimizerState != nil {
		if err := optimizer.LoadStateDict(p.OptimizerState); err != nil {
			return nil, errors.Wrap(err, "failed to resume optimizer state")
		}
		m.logger.Info("Resumed optimizer state from checkpoint")
	}
	if scheduler != nil && p.SchedulerState != nil {
		if loader, ok := scheduler.(model.StateLoader); ok {
			if err := loader.LoadStateDict(p.SchedulerState); err != nil {
				return nil, errors.Wrap(err, "failed to resume scheduler state")
			}
			m.logger.Info("Resumed scheduler state from checkpoint")
		} else {
			m.logger.Debug("Scheduler does not support state restoration")
		}
	}
	return p, nil
}

// Info describes a checkpoint file without its tensors.
type Info struct {
	Path         string
	Step         int
	Epoch        int
	Metrics      map[string]float64
	Timestamp    time.Time
	FileSize     int64
	HasModel     bool
	HasOptimizer bool
	HasScheduler bool
	Compressed   bool
}

// GetCheckpointInfo decodes only the header of a checkpoint.
func (m *Manager) GetCheckpointInfo(path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return nil, errors.NewCheckpointNotFoundError(path)
	}
	hdr, compressed, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	metrics := hdr.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	return &Info{
		Path:         path,
		Step:         hdr.Step,
		Epoch:        hdr.Epoch,
		Metrics:      metrics,
		Timestamp:    hdr.Timestamp,
		FileSize:     st.Size(),
		HasModel:     hdr.HasModel,
		HasOptimizer: hdr.HasOptimizer,
		HasScheduler: hdr.HasScheduler,
		Compressed:   compressed,
	}, nil
}

func cloneMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
