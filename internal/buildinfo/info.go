package buildinfo

var (
	// Version 由 ldflags 在建置時注入
	Version = "dev"
	// Commit 由 ldflags 在建置時注入
	Commit = "none"
	// Date 由 ldflags 在建置時注入
	Date = "unknown"
)
