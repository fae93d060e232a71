// Package utils carries the houston CLI's configuration and logging plumbing.
//
// ConfigurationLoader layers the embedded defaults, discovered config files,
// and HOUSTON_ environment overrides through Viper; LoggerFactory maps the
// --log-level and --log-format flags onto zap loggers.
package utils
