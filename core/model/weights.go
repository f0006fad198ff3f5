package model

import (
	"encoding/json"
	"fmt"

	"github.com/YuminosukeSato/genotrain/core/tensor"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// PortableWeightsVersion is written to every PortableWeights document.
const PortableWeightsVersion = "1"

// PortableWeights はモデルの重みを言語非依存なJSONとして表す構造体
// （scripted形式のエクスポート用）
type PortableWeights struct {
	// Format は生成元の形式タグ
	Format string `json:"format"`

	// Version はドキュメントのバージョン（互換性チェック用）
	Version string `json:"version"`

	// Tensors はパラメータ名から形状とデータへのマップ
	Tensors map[string]PortableTensor `json:"tensors"`

	// Metadata は追加のメタデータ（step, epoch 等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PortableTensor is one entry of PortableWeights.
type PortableTensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewPortableWeights converts a state dict. Tensors are deep-copied.
// A nil tensor has no shape to record and is rejected.
func NewPortableWeights(format string, sd StateDict) (*PortableWeights, error) {
	pw := &PortableWeights{
		Format:   format,
		Version:  PortableWeightsVersion,
		Tensors:  make(map[string]PortableTensor, len(sd)),
		Metadata: make(map[string]interface{}),
	}
	for _, k := range sd.Keys() {
		c := sd[k].Clone()
		if c == nil {
			return nil, errors.NewValueError("NewPortableWeights", fmt.Sprintf("tensor %q is nil", k))
		}
		pw.Tensors[k] = PortableTensor{Shape: c.Shape, Data: c.Data}
	}
	return pw, nil
}

// StateDict converts back to tensors.
func (pw *PortableWeights) StateDict() (StateDict, error) {
	sd := make(StateDict, len(pw.Tensors))
	for k, pt := range pw.Tensors {
		t, err := tensor.New(append([]float64(nil), pt.Data...), pt.Shape...)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", k, err)
		}
		sd[k] = t
	}
	return sd, nil
}

// ToJSON はPortableWeightsをJSON形式にシリアライズ
// NaNや±Infを含むテンソルはJSONで表現できないためエラーになる
func (pw *PortableWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(pw, "", "  ")
}

// FromJSON はJSON形式からPortableWeightsをデシリアライズ
func (pw *PortableWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, pw)
}

// Validate はPortableWeightsの妥当性を検証
func (pw *PortableWeights) Validate() error {
	if pw.Format == "" {
		return fmt.Errorf("format is required")
	}
	if pw.Version == "" {
		return fmt.Errorf("version is required")
	}
	for k, pt := range pw.Tensors {
		n := 1
		for _, d := range pt.Shape {
			n *= d
		}
		if n != len(pt.Data) {
			return fmt.Errorf("tensor %q: shape %v does not match %d values", k, pt.Shape, len(pt.Data))
		}
	}
	return nil
}

// Clone はPortableWeightsのディープコピーを作成
func (pw *PortableWeights) Clone() *PortableWeights {
	clone := &PortableWeights{
		Format:   pw.Format,
		Version:  pw.Version,
		Tensors:  make(map[string]PortableTensor, len(pw.Tensors)),
		Metadata: make(map[string]interface{}, len(pw.Metadata)),
	}
	for k, pt := range pw.Tensors {
		clone.Tensors[k] = PortableTensor{
			Shape: append([]int(nil), pt.Shape...),
			Data:  append([]float64(nil), pt.Data...),
		}
	}
	for k, v := range pw.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
