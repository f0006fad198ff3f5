package checkpoint

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/genotrain/core/model"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// ファイル先頭のマジックとバージョン
var payloadMagic = []byte("GTCKPT")

const (
	payloadVersion byte = 1

	encodingRaw  byte = 0
	encodingGzip byte = 1
)

func init() {
	// ExtraData の interface{} 値として使われる複合型
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(time.Time{})
}

// Header is the metadata block written in front of the state tensors. It can
// be decoded without reading the rest of the file.
type Header struct {
	Step         int
	Epoch        int
	Metrics      map[string]float64
	Timestamp    time.Time
	HasModel     bool
	HasOptimizer bool
	HasScheduler bool
}

// Payload is the full content of a checkpoint file.
type Payload struct {
	Header

	ModelState     model.StateDict
	OptimizerState model.StateDict
	SchedulerState model.StateDict
	ExtraData      map[string]interface{}
}

type payloadBody struct {
	ModelState     model.StateDict
	OptimizerState model.StateDict
	SchedulerState model.StateDict
	ExtraData      map[string]interface{}
}

// writePayload writes p to path through a temporary file in the same
// directory, so a crash never leaves a truncated checkpoint behind.
func writePayload(path string, p *Payload, compress bool) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create checkpoint file %s", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = encodePayload(bw, p, compress); err != nil {
		return errors.Wrapf(err, "failed to write checkpoint file %s", path)
	}
	if err = bw.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write checkpoint file %s", path)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync checkpoint file %s", path)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close checkpoint file %s", path)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to move checkpoint file into place %s", path)
	}
	return nil
}

func encodePayload(w io.Writer, p *Payload, compress bool) error {
	encoding := encodingRaw
	if compress {
		encoding = encodingGzip
	}
	if _, err := w.Write(append(append([]byte(nil), payloadMagic...), payloadVersion, encoding)); err != nil {
		return err
	}

	var (
		dst = w
		gz  *gzip.Writer
	)
	if compress {
		gz = gzip.NewWriter(w)
		dst = gz
	}
	enc := gob.NewEncoder(dst)
	hdr := p.Header
	hdr.HasModel = p.ModelState != nil
	hdr.HasOptimizer = p.OptimizerState != nil
	hdr.HasScheduler = p.SchedulerState != nil
	if err := enc.Encode(&hdr); err != nil {
		return errors.Wrap(err, "encode header")
	}
	body := payloadBody{
		ModelState:     p.ModelState,
		OptimizerState: p.OptimizerState,
		SchedulerState: p.SchedulerState,
		ExtraData:      p.ExtraData,
	}
	if err := enc.Encode(&body); err != nil {
		return errors.Wrap(err, "encode state")
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}

// openPayload validates the preamble and returns a gob decoder positioned at
// the header.
func openPayload(r io.Reader) (*gob.Decoder, func() error, error) {
	preamble := make([]byte, len(payloadMagic)+2)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, nil, errors.Wrap(err, "read preamble")
	}
	if !bytes.Equal(preamble[:len(payloadMagic)], payloadMagic) {
		return nil, nil, errors.New("not a checkpoint file")
	}
	if v := preamble[len(payloadMagic)]; v != payloadVersion {
		return nil, nil, errors.Newf("unsupported checkpoint version %d", v)
	}
	switch preamble[len(payloadMagic)+1] {
	case encodingRaw:
		return gob.NewDecoder(r), func() error { return nil }, nil
	case encodingGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open gzip stream")
		}
		return gob.NewDecoder(gz), gz.Close, nil
	default:
		return nil, nil, errors.Newf("unknown checkpoint encoding %d", preamble[len(payloadMagic)+1])
	}
}

func readPayload(path string) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open checkpoint file %s", path)
	}
	defer f.Close()

	dec, closeFn, err := openPayload(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint file %s", path)
	}
	defer func() { _ = closeFn() }()

	var p Payload
	if err := dec.Decode(&p.Header); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint header %s", path)
	}
	var body payloadBody
	if err := dec.Decode(&body); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint state %s", path)
	}
	p.ModelState = body.ModelState
	p.OptimizerState = body.OptimizerState
	p.SchedulerState = body.SchedulerState
	p.ExtraData = body.ExtraData
	return &p, nil
}

func readHeader(path string) (*Header, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open checkpoint file %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	preamble, err := br.Peek(len(payloadMagic) + 2)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to decode checkpoint file %s", path)
	}
	compressed := preamble[len(payloadMagic)+1] == encodingGzip

	dec, closeFn, err := openPayload(br)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to decode checkpoint file %s", path)
	}
	defer func() { _ = closeFn() }()

	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, false, errors.Wrapf(err, "failed to decode checkpoint header %s", path)
	}
	return &hdr, compressed, nil
}

// copyFile duplicates src into dst byte for byte and carries over the
// modification time.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
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

	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, st.Mode().Perm()); err != nil {
		return err
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return err
	}
	return os.Chtimes(dst, st.ModTime(), st.ModTime())
}
