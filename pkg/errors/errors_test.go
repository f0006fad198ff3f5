package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "LoadStateDict",
			kind:     "missing parameter",
			err:      fmt.Errorf("test error"),
			wantMsg:  "genotrain: LoadStateDict: missing parameter: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Forward",
			kind:     "not in eval mode",
			err:      nil,
			wantMsg:  "genotrain: Forward: not in eval mode",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("ClassificationMetrics.Update", 4, 3, 0)

	want := "genotrain: ClassificationMetrics.Update: dimension mismatch on axis 0 (rows). Expected 4, got 3"
	assert.Equal(t, want, err.Error())

	var dimErr *DimensionError
	assert.True(t, As(err, &dimErr))
}

func TestCheckpointNotFoundError(t *testing.T) {
	err := NewCheckpointNotFoundError("/tmp/ckpt/checkpoint_step_3_epoch_0.ckpt")

	assert.True(t, Is(err, ErrCheckpointNotFound))
	assert.Contains(t, err.Error(), "checkpoint_step_3_epoch_0.ckpt")

	var nf *CheckpointNotFoundError
	require.True(t, As(err, &nf))
	assert.Equal(t, "/tmp/ckpt/checkpoint_step_3_epoch_0.ckpt", nf.Path)

	wrapped := Wrap(err, "resume")
	assert.True(t, Is(wrapped, ErrCheckpointNotFound))

	assert.Equal(t, "genotrain: no checkpoints found", NewCheckpointNotFoundError("").Error())
}

func TestConfigurationErrors(t *testing.T) {
	err := NewUnsupportedFormatError("Export", "onnx")
	var fe *UnsupportedFormatError
	require.True(t, As(err, &fe))
	assert.Equal(t, "onnx", fe.Format)
	assert.Contains(t, err.Error(), `"onnx"`)

	err = NewUnknownTaskTypeError("promoter", "segmentation")
	var te *UnknownTaskTypeError
	require.True(t, As(err, &te))
	assert.Equal(t, "promoter", te.Task)
	assert.Equal(t, "segmentation", te.Type)
}

func TestWarnRouting(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewMetricWarning("auc", "only one class present"))
	require.Len(t, got, 1)
	assert.Equal(t, "could not compute auc metrics: only one class present", got[0].Error())

	// zerolog takes priority once installed.
	var zl []error
	SetZerologWarnFunc(func(w error) { zl = append(zl, w) })
	Warn(NewUndefinedMetricWarning("pearson_corr", "constant input", 0))
	SetZerologWarnFunc(nil)

	assert.Len(t, got, 1)
	assert.Len(t, zl, 1)
}

func TestMarshalZerologObject(t *testing.T) {
	var sb strings.Builder
	logger := zerolog.New(&sb)
	logger.Warn().EmbedObject(NewMetricWarning("auc", "bad")).Msg("warn")
	logger.Error().EmbedObject(&CheckpointNotFoundError{Path: "x"}).Msg("err")

	out := sb.String()
	assert.Contains(t, out, `"type":"MetricWarning"`)
	assert.Contains(t, out, `"type":"CheckpointNotFoundError"`)
	assert.Contains(t, out, `"path":"x"`)
}

func TestNumericalHelpers(t *testing.T) {
	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 0.5, SafeDivide(1, 2))
}
