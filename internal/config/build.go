package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X chargemap/internal/config.version=1.2.3 \
//	    -X chargemap/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X chargemap/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/gateway
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
