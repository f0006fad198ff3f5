// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// チェックポイント管理と評価ハーネスの両方が、ここで定義された構造化エラーを返します。
package errors

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラはslogのデフォルトロガーに警告レベルで出す
		slog.Default().Warn("genotrain warning", slog.String("warning", w.Error()))
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// これにより、MetricWarningなどのカスタム警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nilを渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// MetricWarning is raised when part of a metric computation is infeasible for the
// accumulated data (e.g. AUC with a class that was never observed). The remaining
// metrics are still reported.
type MetricWarning struct {
	Metric string
	Reason string
}

func (w *MetricWarning) Error() string {
	return fmt.Sprintf("could not compute %s metrics: %s", w.Metric, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *MetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("reason", w.Reason).
		Str("type", "MetricWarning")
}

// NewMetricWarning は新しいMetricWarningを作成します。
func NewMetricWarning(metric, reason string) *MetricWarning {
	return &MetricWarning{Metric: metric, Reason: reason}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、相関係数を計算する際に、入力系列の分散がゼロだった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ErrCheckpointNotFound is the sentinel matched by errors.Is for every
// CheckpointNotFoundError.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointNotFoundError is returned when a requested checkpoint cannot be resolved
// to an existing file.
type CheckpointNotFoundError struct {
	// Path is the resolved path, or empty when no checkpoint could be resolved at all.
	Path string
}

func (e *CheckpointNotFoundError) Error() string {
	if e.Path == "" {
		return "genotrain: no checkpoints found"
	}
	return fmt.Sprintf("genotrain: checkpoint not found: %s", e.Path)
}

// Is makes errors.Is(err, ErrCheckpointNotFound) hold.
func (e *CheckpointNotFoundError) Is(target error) bool {
	return target == ErrCheckpointNotFound
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *CheckpointNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("type", "CheckpointNotFoundError")
}

// NewCheckpointNotFoundError は新しいCheckpointNotFoundErrorを作成し、スタックトレースを付与します。
func NewCheckpointNotFoundError(path string) error {
	return errors.WithStack(&CheckpointNotFoundError{Path: path})
}

// UnsupportedFormatError is a configuration error raised at call time when an
// export format is not known.
type UnsupportedFormatError struct {
	Op     string
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("genotrain: %s: unsupported export format %q", e.Op, e.Format)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnsupportedFormatError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("format", e.Format).
		Str("type", "UnsupportedFormatError")
}

// NewUnsupportedFormatError は新しいUnsupportedFormatErrorを作成し、スタックトレースを付与します。
func NewUnsupportedFormatError(op, format string) error {
	return errors.WithStack(&UnsupportedFormatError{Op: op, Format: format})
}

// UnknownTaskTypeError is returned when an evaluation task is configured with a
// type tag that does not name a metric family.
type UnknownTaskTypeError struct {
	Task string
	Type string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("genotrain: task %q: unknown task type %q", e.Task, e.Type)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownTaskTypeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("task", e.Task).
		Str("task_type", e.Type).
		Str("type", "UnknownTaskTypeError")
}

// NewUnknownTaskTypeError は新しいUnknownTaskTypeErrorを作成し、スタックトレースを付与します。
func NewUnknownTaskTypeError(task, taskType string) error {
	return errors.WithStack(&UnknownTaskTypeError{Task: task, Type: taskType})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("genotrain: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
// `ValueError`よりも具体的なバリデーションロジックの失敗を示します。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("genotrain: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
// 例えば、語彙サイズを超えるトークンIDがターゲットに含まれている場合など。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("genotrain: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError はモデル（外部コラボレータ）に関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("genotrain: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("genotrain: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingleClass はAUC計算で片方のクラスしか観測されていない場合のエラーです。
	ErrSingleClass = New("only one class present in targets")
)
