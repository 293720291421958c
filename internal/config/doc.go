// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to the settings the scheduler, worker, store, and
// retention sweeper need while keeping configuration details separate from
// the scheduling logic.
package config
