package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// SaveStateDict はStateDictをgob形式でファイルに保存する
//
// 使用例:
//
//	err := model.SaveStateDict(net.StateDict(), "weights.gob")
func SaveStateDict(sd StateDict, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", filename)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", filename)
		}
	}()
	return SaveStateDictToWriter(sd, file)
}

// LoadStateDict はgob形式のファイルからStateDictを読み込む
func LoadStateDict(filename string) (StateDict, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer file.Close()
	return LoadStateDictFromReader(file)
}

// SaveStateDictToWriter はStateDictをio.Writerに保存する
func SaveStateDictToWriter(sd StateDict, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(sd); err != nil {
		return errors.Wrap(err, "failed to encode state dict")
	}
	return nil
}

// LoadStateDictFromReader はio.ReaderからStateDictを読み込む
func LoadStateDictFromReader(r io.Reader) (StateDict, error) {
	var sd StateDict
	if err := gob.NewDecoder(r).Decode(&sd); err != nil {
		return nil, errors.Wrap(err, "failed to decode state dict")
	}
	return sd, nil
}
