// Package version exposes build metadata injected at link time.
//
//	go build -ldflags "-X github.com/tradepsych/insight/version.GitRelease=v0.3.0 \
//	  -X github.com/tradepsych/insight/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)

// UserAgent is sent to providers that accept an application identifier.
func UserAgent() string {
	return "insight/" + GitRelease
}
