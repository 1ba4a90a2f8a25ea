// Package version reports the kernel build.
//
// Values are stamped with -ldflags at build time and filled from the
// module build info when absent:
//
//	go build -ldflags "-X github.com/watchmen-go/kernel/version.Version=1.2.0" ./cmd/watchmen-kernel
package version
