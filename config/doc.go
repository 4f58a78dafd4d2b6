// Package config defines the pipeline configuration and a loader with the
// precedence: defaults, then YAML file, then environment variables
// (prefix AGENTPULSE).
package config
