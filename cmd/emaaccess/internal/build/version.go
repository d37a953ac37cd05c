// Package build holds build-time version information injected via ldflags.
//
//	go build -ldflags "-X github.com/koscakluka/ema-access/cmd/emaaccess/internal/build.Version=v0.1.0 \
//	  -X github.com/koscakluka/ema-access/cmd/emaaccess/internal/build.Commit=$(git rev-parse --short HEAD)"
package build

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("emaaccess %s (%s) built %s %s/%s",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
