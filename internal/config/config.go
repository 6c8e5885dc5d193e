// Package config loads pipeline definition files and tool-level settings.
//
// Pipeline definitions may be written as YAML (pipewright.yml / .yaml) or
// JSONC (pipewright.json / .jsonc). YAML is decoded with gopkg.in/yaml.v3;
// JSON variants are stripped of comments with github.com/tidwall/jsonc and
// then decoded with the standard encoding/json library, so both formats
// share one struct definition in the model package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/pipewright/pipewright/internal/model"
)

// candidateNames are the pipeline file names probed by FindPipelineFile,
// in preference order.
var candidateNames = []string{
	"pipewright.yml",
	"pipewright.yaml",
	"pipewright.json",
	"pipewright.jsonc",
}

// DefaultTagPattern is the tag trigger pattern applied when the pipeline
// does not declare one: plain semantic-version tags like v1.2.3.
const DefaultTagPattern = `^v\d+\.\d+\.\d+$`

// DefaultTokenEnv is the environment variable consulted for the release
// host token when the deploy section does not name one.
const DefaultTokenEnv = "GITHUB_TOKEN"

// FindPipelineFile locates a pipeline definition in the given directory.
// It probes the candidate file names in order and returns the absolute
// path of the first one that exists.
//
// Returns a model.CLIError with ExitConfigError when no candidate exists.
func FindPipelineFile(dir string) (string, error) {
	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return filepath.Abs(path)
		}
	}
	return "", model.NewCLIError(
		model.ExitConfigError,
		fmt.Sprintf("no pipeline file found in %s (looked for %s)",
			dir, strings.Join(candidateNames, ", ")),
	)
}

// LoadPipeline reads, decodes, defaults, and validates a pipeline
// definition file. The decoder is chosen by file extension.
//
// The returned pipeline has all defaults applied (tag pattern, token
// env, artifact archive names are resolved lazily via ArchiveName).
func LoadPipeline(path string) (*model.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read pipeline file %s", path), err)
	}

	var p model.Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("invalid YAML in %s", path), err)
		}
	case ".json", ".jsonc":
		// jsonc.ToJSON strips // and /* */ comments plus trailing
		// commas, leaving plain JSON for the standard decoder.
		if err := json.Unmarshal(jsonc.ToJSON(data), &p); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("invalid JSON in %s", path), err)
		}
	default:
		return nil, model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("unsupported pipeline file extension %q", filepath.Ext(path)))
	}

	ApplyDefaults(&p)

	if err := p.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("invalid pipeline %s", path), err)
	}
	return &p, nil
}

// ApplyDefaults fills in the documented default values on a decoded
// pipeline. Called by LoadPipeline; exported for tests that construct
// pipelines directly.
func ApplyDefaults(p *model.Pipeline) {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.TagPattern == "" {
		p.TagPattern = DefaultTagPattern
	}
	if p.Deploy != nil && p.Deploy.TokenEnv == "" {
		p.Deploy.TokenEnv = DefaultTokenEnv
	}
	if p.Name == "" {
		// Fall back to the working directory name so ad-hoc pipelines
		// without a name still get cache namespacing.
		if wd, err := os.Getwd(); err == nil {
			p.Name = filepath.Base(wd)
		}
	}
}
