package checkpoint

import (
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/genotrain/core/model"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

// ExportFormat selects the Export output.
type ExportFormat string

const (
	// FormatFull writes a checkpoint file holding only the model state. It
	// can be read back with Manager.Load.
	FormatFull ExportFormat = "full"
	// FormatStateDict writes the bare state dict as written by model.SaveStateDict.
	FormatStateDict ExportFormat = "state_dict"
	// FormatScripted writes portable JSON weights (model.PortableWeights).
	FormatScripted ExportFormat = "scripted"
)

// ExportOptions configures Export. The zero value exports the module as it
// is in FormatFull.
type ExportOptions struct {
	// Source is a checkpoint to load into the module first.
	Source string
	// LoadBest loads the best checkpoint into the module first.
	LoadBest bool
	Format   ExportFormat
}

// Export writes module to target in the requested format. An unknown format is
// rejected before anything is loaded or written. Scripted export failures are
// logged and do not return an error.
func (m *Manager) Export(module model.Module, target string, opts ExportOptions) error {
	format := opts.Format
	if format == "" {
		format = FormatFull
	}
	switch format {
	case FormatFull, FormatStateDict, FormatScripted:
	default:
		return errors.NewUnsupportedFormatError("Export", string(format))
	}

	if opts.Source != "" || opts.LoadBest {
		if _, err := m.LoadModelFromCheckpoint(module, opts.Source, opts.LoadBest, true); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create export directory for %s", target)
	}

	logger := m.logger.With(log.OperationKey, log.OperationExport, log.CheckpointPathKey, target, log.FormatKey, string(format))
	switch format {
	case FormatFull:
		p := &Payload{
			Header:     Header{Timestamp: m.opts.now()},
			ModelState: module.StateDict(),
		}
		if err := writePayload(target, p, m.opts.compress); err != nil {
			return err
		}
	case FormatStateDict:
		if err := model.SaveStateDict(module.StateDict(), target); err != nil {
			return errors.Wrapf(err, "failed to export state dict %s", target)
		}
	case FormatScripted:
		module.Eval()
		if err := writeScripted(module, target); err != nil {
			logger.Error("Scripted export failed", err)
			return nil
		}
	}
	logger.Info("Exported model")
	return nil
}

// writeScripted converts module to portable JSON. Panics raised while the
// module produces its state are returned as errors.
func writeScripted(module model.Module, target string) error {
	return errors.SafeExecute("scripted export", func() error {
		pw, err := model.NewPortableWeights(string(FormatScripted), module.StateDict())
		if err != nil {
			return err
		}
		if err := pw.Validate(); err != nil {
			return err
		}
		data, err := pw.ToJSON()
		if err != nil {
			return err
		}
		return writeFileAtomic(target, data)
	})
}
