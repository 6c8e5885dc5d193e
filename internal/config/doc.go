// Package config is the configuration layer of pipewright.
//
// It covers two distinct surfaces:
//
//   - Pipeline definitions (config.go): the per-project pipewright.yml /
//     pipewright.jsonc file describing triggers, steps, artifacts, deploy,
//     and cache paths. Decoded into model.Pipeline.
//
//   - Tool settings (settings.go): installation-wide knobs such as the
//     cache root directory, resolved via viper from environment variables
//     and an optional user config file.
package config
