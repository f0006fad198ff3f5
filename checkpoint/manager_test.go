package checkpoint

import (
	"bytes"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/genotrain/core/model"
	"github.com/YuminosukeSato/genotrain/core/tensor"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

// stateful implements model.StateSaver and model.StateLoader.
type stateful struct {
	state model.StateDict
}

func (s *stateful) StateDict() model.StateDict { return s.state.Clone() }

func (s *stateful) LoadStateDict(sd model.StateDict) error {
	s.state = sd.Clone()
	return nil
}

// opaqueScheduler has no state methods.
type opaqueScheduler struct{ lr float64 }

func sampleParams(scale float64) model.StateDict {
	return model.StateDict{
		"embed.weight": tensor.MustNew([]float64{0.1 * scale, 0.2 * scale, 0.3 * scale, 0.4 * scale}, 2, 2),
		"head.bias":    tensor.MustNew([]float64{-1.5 * scale}, 1),
	}
}

func newTestManager(t *testing.T, dir string, opts ...Option) (*Manager, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	base := []Option{
		WithLogger(logger),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	}
	m, err := NewManager(dir, append(base, opts...)...)
	require.NoError(t, err)
	return m, logger
}

func checkpointFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "checkpoint_step_*"+FileExt))
	require.NoError(t, err)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "checkpoint_step_1200_epoch_3.ckpt", FileName(1200, 3))
}

func TestSaveAndResumeOnFreshManager(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)

	net := model.NewParamSet(sampleParams(1))
	opt := &stateful{state: model.StateDict{"adam.m": tensor.MustNew([]float64{0.01, math.SmallestNonzeroFloat64})}}
	sched := &stateful{state: model.StateDict{"last_epoch": tensor.MustNew([]float64{7})}}

	path, err := m.Save(net, 100, 2, map[string]float64{"loss": 0.42},
		WithOptimizer(opt),
		WithScheduler(sched),
		WithExtraData(map[string]interface{}{"seed": 17, "tags": []interface{}{"a", "b"}}),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "checkpoint_step_100_epoch_2.ckpt"), path)

	fresh, _ := newTestManager(t, dir)
	restored := model.NewParamSet(sampleParams(0))
	restoredOpt := &stateful{}
	restoredSched := &stateful{}

	p, err := fresh.ResumeTraining(restored, restoredOpt, restoredSched, "")
	require.NoError(t, err)

	assert.True(t, restored.Params.Equal(net.Params), "model state must be bit-identical")
	assert.True(t, restoredOpt.state.Equal(opt.state))
	assert.True(t, restoredSched.state.Equal(sched.state))
	assert.Equal(t, 100, p.Step)
	assert.Equal(t, 2, p.Epoch)
	assert.Equal(t, 0.42, p.Metrics["loss"])
	assert.Equal(t, 17, p.ExtraData["seed"])
	assert.Equal(t, []interface{}{"a", "b"}, p.ExtraData["tags"])
}

func TestSaveCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithCompression(true))
	net := model.NewParamSet(sampleParams(3))
	path, err := m.Save(net, 1, 0, nil)
	require.NoError(t, err)

	info, err := m.GetCheckpointInfo(path)
	require.NoError(t, err)
	assert.True(t, info.Compressed)

	// reading does not depend on the writer's setting
	plain, _ := newTestManager(t, dir)
	restored := model.NewParamSet(sampleParams(0))
	_, err = plain.LoadModelFromCheckpoint(restored, path, false, true)
	require.NoError(t, err)
	assert.True(t, restored.Params.Equal(net.Params))
}

func TestSchedulerCapabilityCheck(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)
	net := model.NewParamSet(sampleParams(1))

	path, err := m.Save(net, 1, 0, nil, WithScheduler(&opaqueScheduler{lr: 0.1}))
	require.NoError(t, err)
	info, err := m.GetCheckpointInfo(path)
	require.NoError(t, err)
	assert.False(t, info.HasScheduler)
	assert.False(t, info.HasOptimizer)

	path, err = m.Save(net, 2, 0, nil, WithScheduler(&stateful{state: sampleParams(1)}))
	require.NoError(t, err)

	// a scheduler without LoadStateDict is tolerated on resume
	_, err = m.ResumeTraining(model.NewParamSet(sampleParams(0)), nil, &opaqueScheduler{}, path)
	assert.NoError(t, err)
}

func TestSaveOptimizerDisabled(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), WithSaveOptimizer(false), WithSaveScheduler(false))
	path, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, nil,
		WithOptimizer(&stateful{state: sampleParams(1)}),
		WithScheduler(&stateful{state: sampleParams(1)}),
	)
	require.NoError(t, err)
	info, err := m.GetCheckpointInfo(path)
	require.NoError(t, err)
	assert.False(t, info.HasOptimizer)
	assert.False(t, info.HasScheduler)
	assert.True(t, info.HasModel)
}

type brokenSaver struct{}

func (brokenSaver) StateDict() model.StateDict { panic("parameter buffer released") }

func TestSaveRecoversStateDictPanic(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)

	_, err := m.Save(brokenSaver{}, 1, 0, map[string]float64{"loss": 1})
	var perr *errors.PanicError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "checkpoint.capture", perr.Operation)
	assert.Empty(t, checkpointFiles(t, dir))
	assert.Empty(t, m.History().Records)
}

func TestRetentionKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithMaxCheckpoints(2), WithSaveBest(false))
	net := model.NewParamSet(sampleParams(1))

	for step := 1; step <= 3; step++ {
		_, err := m.Save(net, step, 0, map[string]float64{"loss": float64(step)})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(checkpointFiles(t, dir)), 2)
	}

	assert.ElementsMatch(t, []string{
		"checkpoint_step_2_epoch_0.ckpt",
		"checkpoint_step_3_epoch_0.ckpt",
	}, checkpointFiles(t, dir))

	records := m.ListCheckpoints()
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Step)
	assert.Equal(t, 2, records[1].Step)
	_, ok := m.BestCheckpoint()
	assert.False(t, ok)
}

func TestRetentionExemptsBest(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithMaxCheckpoints(1))
	net := model.NewParamSet(sampleParams(1))

	for step, loss := range []float64{0.1, 0.5, 0.9} {
		_, err := m.Save(net, step+1, 0, map[string]float64{"loss": loss})
		require.NoError(t, err)
	}

	assert.ElementsMatch(t, []string{
		"checkpoint_step_1_epoch_0.ckpt",
		"checkpoint_step_3_epoch_0.ckpt",
	}, checkpointFiles(t, dir))

	h := m.History()
	assert.Equal(t, 0.1, h.BestMetric)
	assert.Equal(t, filepath.Join(dir, FileName(1, 0)), h.BestCheckpointPath)

	best, ok := m.BestCheckpoint()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, BestFileName), best)
}

func TestRetentionDisabled(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithMaxCheckpoints(0), WithSaveBest(false))
	net := model.NewParamSet(sampleParams(1))
	for step := 1; step <= 4; step++ {
		_, err := m.Save(net, step, 0, nil)
		require.NoError(t, err)
	}
	assert.Len(t, checkpointFiles(t, dir), 4)
}

func TestBestTracking(t *testing.T) {
	tests := []struct {
		name     string
		minimize bool
		values   []float64
		wantBest float64
		wantStep int
	}{
		{"minimize", true, []float64{0.5, 0.3, 0.4}, 0.3, 2},
		{"maximize", false, []float64{0.5, 0.8, 0.7}, 0.8, 2},
		{"nan never wins", true, []float64{math.NaN(), 0.9, math.NaN()}, 0.9, 2},
		{"ties keep first", true, []float64{0.2, 0.2}, 0.2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m, _ := newTestManager(t, dir, WithMinimize(tt.minimize), WithMetricForBest("val"), WithMaxCheckpoints(0))
			for i, v := range tt.values {
				_, err := m.Save(model.NewParamSet(sampleParams(float64(i+1))), i+1, 0, map[string]float64{"val": v})
				require.NoError(t, err)
			}
			h := m.History()
			assert.Equal(t, tt.wantBest, h.BestMetric)
			assert.Equal(t, filepath.Join(dir, FileName(tt.wantStep, 0)), h.BestCheckpointPath)

			want, err := os.ReadFile(filepath.Join(dir, FileName(tt.wantStep, 0)))
			require.NoError(t, err)
			got, err := os.ReadFile(filepath.Join(dir, BestFileName))
			require.NoError(t, err)
			assert.Equal(t, want, got, "best copy must be byte-identical")
		})
	}
}

func TestBestCopyPreservesModTime(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)
	path, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, map[string]float64{"loss": 1})
	require.NoError(t, err)

	src, err := os.Stat(path)
	require.NoError(t, err)
	dst, err := os.Stat(filepath.Join(dir, BestFileName))
	require.NoError(t, err)
	assert.True(t, src.ModTime().Equal(dst.ModTime()))
}

func TestBestWithoutMetricKey(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)
	_, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, map[string]float64{"acc": 0.9})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, BestFileName))
	assert.True(t, math.IsInf(m.History().BestMetric, 1))
}

func TestLoadBest(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithMaxCheckpoints(1))
	_, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, map[string]float64{"loss": 0.1})
	require.NoError(t, err)
	_, err = m.Save(model.NewParamSet(sampleParams(2)), 2, 0, map[string]float64{"loss": 0.2})
	require.NoError(t, err)

	restored := model.NewParamSet(sampleParams(0))
	p, err := m.LoadModelFromCheckpoint(restored, "", true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Step)
	assert.True(t, restored.Params.Equal(sampleParams(1)))

	latest, err := m.Load("", false)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Step)
}

func TestSameStepReplacesRecord(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithSaveBest(false))
	net := model.NewParamSet(sampleParams(1))
	_, err := m.Save(net, 5, 1, map[string]float64{"loss": 1})
	require.NoError(t, err)
	_, err = m.Save(net, 5, 1, map[string]float64{"loss": 2})
	require.NoError(t, err)

	records := m.ListCheckpoints()
	require.Len(t, records, 1)
	assert.Equal(t, 2.0, records[0].Metrics["loss"])
}

type stepLoss struct {
	step int
	loss float64
}

func TestResaveOfBestReselects(t *testing.T) {
	tests := []struct {
		name     string
		saves    []stepLoss
		wantStep int
		wantBest float64
	}{
		{
			name:     "other checkpoint takes over",
			saves:    []stepLoss{{1, 0.1}, {2, 0.5}, {1, 0.9}},
			wantStep: 2,
			wantBest: 0.5,
		},
		{
			name:     "rewritten checkpoint still best",
			saves:    []stepLoss{{1, 0.1}, {2, 0.5}, {1, 0.3}},
			wantStep: 1,
			wantBest: 0.3,
		},
		{
			name:     "only checkpoint",
			saves:    []stepLoss{{1, 0.1}, {1, 0.9}},
			wantStep: 1,
			wantBest: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m, _ := newTestManager(t, dir)
			for _, sv := range tt.saves {
				_, err := m.Save(model.NewParamSet(sampleParams(sv.loss)), sv.step, 0, map[string]float64{"loss": sv.loss})
				require.NoError(t, err)
			}

			h := m.History()
			assert.Equal(t, tt.wantBest, h.BestMetric)
			assert.Equal(t, filepath.Join(dir, FileName(tt.wantStep, 0)), h.BestCheckpointPath)

			info, err := m.GetCheckpointInfo(filepath.Join(dir, BestFileName))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStep, info.Step)
			assert.Equal(t, tt.wantBest, info.Metrics["loss"])

			reloaded, _ := newTestManager(t, dir)
			assert.Equal(t, tt.wantBest, reloaded.History().BestMetric)
		})
	}
}

func TestLatestSkipsStaleRecords(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithSaveBest(false))
	net := model.NewParamSet(sampleParams(1))
	first, err := m.Save(net, 1, 0, nil)
	require.NoError(t, err)
	second, err := m.Save(net, 2, 0, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(second))
	latest, ok := m.LatestCheckpoint()
	require.True(t, ok)
	assert.Equal(t, first, latest)
	assert.Len(t, m.ListCheckpoints(), 1)

	// history is filtered on the next construction
	fresh, _ := newTestManager(t, dir)
	assert.Len(t, fresh.History().Records, 1)
}

func TestLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)

	_, err := m.Load("", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCheckpointNotFound))

	_, err = m.Load("", true)
	var nf *errors.CheckpointNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, filepath.Join(dir, BestFileName), nf.Path)

	missing := filepath.Join(dir, "nope.ckpt")
	_, err = m.Load(missing, false)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, missing, nf.Path)
	assert.Contains(t, err.Error(), missing)

	_, err = m.GetCheckpointInfo(missing)
	assert.True(t, errors.Is(err, errors.ErrCheckpointNotFound))

	_, err = m.ResumeTraining(model.NewParamSet(nil), nil, nil, "")
	assert.True(t, errors.Is(err, errors.ErrCheckpointNotFound))
}

func TestLoadRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)
	path := filepath.Join(dir, "weights.bin")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a checkpoint"), 0o644))

	_, err := m.Load(path, false)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrCheckpointNotFound))
	assert.Contains(t, err.Error(), path)
}

func TestCorruptHistoryFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)
	_, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, map[string]float64{"loss": 1})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFileName), []byte("{\"checkpoint_history\": [tru"), 0o644))

	fresh, logger := newTestManager(t, dir)
	assert.Empty(t, fresh.ListCheckpoints())
	_, ok := fresh.LatestCheckpoint()
	assert.False(t, ok)
	assert.True(t, math.IsInf(fresh.History().BestMetric, 1))
	assert.NotEmpty(t, logger.EntriesAt(log.LevelWarn))
}

func TestHistoryFilePersistence(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithMetricForBest("val_loss"))
	_, err := m.Save(model.NewParamSet(sampleParams(1)), 10, 1, map[string]float64{
		"val_loss": 0.25,
		"grad":     math.Inf(1),
		"ppl":      math.NaN(),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, HistoryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"checkpoint_history"`)
	assert.Contains(t, string(data), `"metric_for_best": "val_loss"`)
	assert.Contains(t, string(data), `"minimize_metric": true`)
	assert.Contains(t, string(data), `"Infinity"`)

	fresh, _ := newTestManager(t, dir, WithMetricForBest("val_loss"))
	h := fresh.History()
	require.Len(t, h.Records, 1)
	r := h.Records[0]
	assert.Equal(t, 10, r.Step)
	assert.Equal(t, 1, r.Epoch)
	assert.True(t, math.IsInf(r.Metrics["grad"], 1))
	assert.True(t, math.IsNaN(r.Metrics["ppl"]))
	assert.Equal(t, 0.25, h.BestMetric)
	assert.Equal(t, filepath.Join(dir, FileName(10, 1)), h.BestCheckpointPath)
	_, err = time.Parse(time.RFC3339Nano, r.Timestamp)
	assert.NoError(t, err)

	// a worse value after restart must not replace the restored best
	_, err = fresh.Save(model.NewParamSet(sampleParams(2)), 11, 1, map[string]float64{"val_loss": 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.25, fresh.History().BestMetric)
}

func TestReadHistory(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithMetricForBest("acc"), WithMinimize(false))
	_, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, map[string]float64{"acc": 0.7})
	require.NoError(t, err)

	h, err := ReadHistory(dir)
	require.NoError(t, err)
	assert.Equal(t, "acc", h.MetricForBest)
	assert.False(t, h.MinimizeMetric)
	assert.Equal(t, 0.7, h.BestMetric)
	require.Len(t, h.Records, 1)

	t.Run("no best uses persisted direction", func(t *testing.T) {
		dir := t.TempDir()
		m, _ := newTestManager(t, dir, WithMetricForBest("acc"), WithMinimize(false))
		_, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, map[string]float64{"loss": 1})
		require.NoError(t, err)

		h, err := ReadHistory(dir)
		require.NoError(t, err)
		assert.Empty(t, h.BestCheckpointPath)
		assert.True(t, math.IsInf(h.BestMetric, -1))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadHistory(t.TempDir())
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestHistoryWithoutBestIsNull(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithSaveBest(false))
	_, err := m.Save(model.NewParamSet(sampleParams(1)), 1, 0, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, HistoryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"best_metric": null`)
	assert.Contains(t, string(data), `"best_checkpoint_path": null`)
}

func TestDeleteCheckpoint(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir, WithSaveBest(false))
	net := model.NewParamSet(sampleParams(1))
	first, err := m.Save(net, 1, 0, nil)
	require.NoError(t, err)
	_, err = m.Save(net, 2, 0, nil)
	require.NoError(t, err)

	require.NoError(t, m.DeleteCheckpoint(first))
	assert.NoFileExists(t, first)
	assert.Len(t, m.History().Records, 1)

	fresh, _ := newTestManager(t, dir)
	assert.Len(t, fresh.History().Records, 1)

	// deleting an absent file is a no-op
	assert.NoError(t, m.DeleteCheckpoint(first))
}

func TestGetCheckpointInfo(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)
	path, err := m.Save(model.NewParamSet(sampleParams(1)), 7, 2, map[string]float64{"loss": 0.7},
		WithOptimizer(&stateful{state: sampleParams(1)}))
	require.NoError(t, err)

	info, err := m.GetCheckpointInfo(path)
	require.NoError(t, err)
	st, err := os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, path, info.Path)
	assert.Equal(t, 7, info.Step)
	assert.Equal(t, 2, info.Epoch)
	assert.Equal(t, 0.7, info.Metrics["loss"])
	assert.Equal(t, st.Size(), info.FileSize)
	assert.True(t, info.HasModel)
	assert.True(t, info.HasOptimizer)
	assert.False(t, info.HasScheduler)
	assert.False(t, info.Compressed)
	assert.False(t, info.Timestamp.IsZero())
}

func TestGetCheckpointInfoReadsHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)

	// a file holding the preamble and header but no state block
	var buf bytes.Buffer
	buf.Write(payloadMagic)
	buf.WriteByte(payloadVersion)
	buf.WriteByte(encodingRaw)
	require.NoError(t, gob.NewEncoder(&buf).Encode(&Header{Step: 3, Epoch: 1, HasModel: true}))
	path := filepath.Join(dir, "header_only.ckpt")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	info, err := m.GetCheckpointInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Step)
	assert.NotNil(t, info.Metrics)

	_, err = m.Load(path, false)
	assert.Error(t, err)
}
