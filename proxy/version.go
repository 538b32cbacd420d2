package proxy

import (
	"runtime/debug"
	"strings"
)

// Version is the release version of the proxy. Builds from a tagged module report that tag instead.
const Version = "0.3.0"

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	v := info.Main.Version
	if v == "" || v == "(devel)" {
		return Version
	}
	return strings.TrimPrefix(v, "v")
}
