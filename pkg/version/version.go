// Package version identifies the running lexi build in logs, health output
// and the User-Agent of outbound requests.
package version

import "runtime/debug"

// AppName is the service name reported to tracing and upstream services.
const AppName = "lexi"

const commitLen = 8

// commit can be stamped with -ldflags "-X .../pkg/version.commit=<sha>" for
// images built without a .git directory.
var commit string

// GitCommit is the short commit lexi was built from, "dev" when unknown.
var GitCommit = resolveCommit(commit, readBuildInfo)

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func resolveCommit(stamped string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if stamped != "" {
		return shorten(stamped)
	}
	info, ok := buildInfo()
	if !ok {
		return "dev"
	}
	var revision string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if dirty {
		return shorten(revision) + "-dirty"
	}
	return shorten(revision)
}

func shorten(sha string) string {
	if len(sha) > commitLen {
		return sha[:commitLen]
	}
	return sha
}

// Full returns "lexi/<commit>", the User-Agent sent to upstream services.
func Full() string {
	return AppName + "/" + GitCommit
}
