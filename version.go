package main

// Build information, injected at link time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)
