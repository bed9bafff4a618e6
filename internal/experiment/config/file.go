package config

import (
	"context"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

// fileDocument is the on-disk shape of a test-definition file.
type fileDocument struct {
	Tests []models.Test `yaml:"tests"`
}

// File loads test definitions from a YAML file on every call, so edits are
// picked up by the next (uncached) read.
type File struct {
	path   string
	logger *slog.Logger
}

// NewFile creates a provider reading from path.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

func (f *File) GetConfig(ctx context.Context) (models.ConfigSet, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read test definitions")
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "parse test definitions")
	}

	set := make(models.ConfigSet, len(doc.Tests))
	for _, t := range doc.Tests {
		set[t.ID] = t
	}

	valid, errs := set.Validated()
	for _, verr := range errs {
		f.logger.WarnContext(ctx, "dropping invalid test definition", "path", f.path, "error", verr)
	}
	return valid, nil
}
