package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// ErrNoModels is returned if the model directory holds no SavedModel bundles.
var ErrNoModels = errors.New("no SavedModel bundles found")

const savedModelFile = "saved_model.pb"

var versionDirPattern = regexp.MustCompile(`^\d+$`)

// FindModels returns the base paths of all SavedModel bundles below dir, in lexical order.
// A bundle is a saved_model.pb file inside a numeric version directory;
// the base path is the directory containing the version directories.
func FindModels(fs afero.Fs, dir string) ([]string, error) {
	var models []string
	err := afero.Walk(fs, dir, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Name() != savedModelFile {
			return nil
		}
		versionDir := filepath.Dir(file)
		if !versionDirPattern.MatchString(filepath.Base(versionDir)) {
			return nil
		}
		if model := filepath.Dir(versionDir); !slices.Contains(models, model) {
			models = append(models, model)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s for models: %w", dir, err)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoModels, dir)
	}
	return models, nil
}

// DefaultModel returns the name of the first model found below dir.
func DefaultModel(fs afero.Fs, dir string) (string, error) {
	models, err := FindModels(fs, dir)
	if err != nil {
		return "", err
	}
	return ModelName(models[0]), nil
}

// ModelName returns the name a model is served under, which is the base name of its path.
func ModelName(modelPath string) string {
	return path.Base(filepath.ToSlash(modelPath))
}

// RenderModelConfig renders a TensorFlow Serving model_config_list serving all given models.
func RenderModelConfig(models []string) string {
	var b strings.Builder
	b.WriteString("model_config_list: {\n")
	for _, m := range models {
		b.WriteString("  config: {\n")
		fmt.Fprintf(&b, "    name: %q,\n", ModelName(m))
		fmt.Fprintf(&b, "    base_path: %q,\n", m)
		b.WriteString("    model_platform: \"tensorflow\"\n")
		b.WriteString("  },\n")
	}
	b.WriteString("}\n")
	return b.String()
}
