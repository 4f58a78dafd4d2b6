/*
Package main provides the AgentPulse command line entry point.

# Overview

cmd/agentpulse is the executable wrapper around the monitoring pipeline:
it can probe a host for detectable agent frameworks, verify collector
credentials, and run a stdin-driven monitoring session. Configuration
comes from a YAML file plus AGENTPULSE_* environment variables.

# Subcommands

  - detect           — list detectable frameworks, best candidate marked
  - test-connection  — send one probe heartbeat to the collector
  - run              — start a session and emit JSON events read from stdin
  - version          — Version, BuildTime, GitCommit (set via ldflags)
*/
package main
