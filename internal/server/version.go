package server

// Version is the reported service version. Overridden at build time via
// -ldflags "-X github.com/spendlens/guardrails/internal/server.Version=...".
var Version = "0.1.0"
