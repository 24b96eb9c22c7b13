package handlers

import (
	"net/http"
	"runtime"
)

// buildInfo holds the link-time version stamp. The defaults describe an
// unstamped development build.
var buildInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetBuildInfo records the version stamped at link time. Empty values
// keep the development defaults.
func SetBuildInfo(version, commit, buildDate string) {
	if version != "" {
		buildInfo.Version = version
	}
	if commit != "" {
		buildInfo.Commit = commit
	}
	if buildDate != "" {
		buildInfo.BuildDate = buildDate
	}
}

// VersionResponse is the body of the version endpoint.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// VersionHandler reports the build identity of the running binary.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   buildInfo.Version,
		Commit:    buildInfo.Commit,
		BuildDate: buildInfo.BuildDate,
		GoVersion: runtime.Version(),
	})
}
