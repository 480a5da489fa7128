// Package config provides configuration types and loading for the gateway.
//
// Configuration is a single YAML document. Fields left out of the file keep
// the values of DefaultConfig, ${VAR} and ${VAR:-default} references are
// substituted from the environment before parsing, and a handful of
// TOKENGATE_* variables override the parsed values.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("tokengate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
// The watcher reloads the file on change and hands the validated result to
// a callback:
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
//	    _ = logger.SetLevel(cfg.Logging.Level)
//	}, config.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = watcher.Start(ctx)
package config
