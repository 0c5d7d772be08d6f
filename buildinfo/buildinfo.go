package buildinfo

import "fmt"

var (
	// GitCommit is set by govvv at build time.
	GitCommit = "default-git-commit"
	// GitBranch is set by govvv at build time.
	GitBranch = "default-git-branch"
	// GitState is set by govvv at build time.
	GitState = "default-git-state"
	// GitSummary is set by govvv at build time.
	GitSummary = "default-git-summary"
	// BuildDate is set by govvv at build time.
	BuildDate = "default-build-date"
	// Version is set by govvv at build time.
	Version = "default-version"
)

// Info is the build information of a binary.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	GitBranch  string `json:"git_branch"`
	GitState   string `json:"git_state"`
	GitSummary string `json:"git_summary"`
	BuildDate  string `json:"build_date"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:    Version,
		GitCommit:  GitCommit,
		GitBranch:  GitBranch,
		GitState:   GitState,
		GitSummary: GitSummary,
		BuildDate:  BuildDate,
	}
}

// Short returns the version and commit on a single line.
func (i Info) Short() string {
	return fmt.Sprintf("%s (%s, built %s)", i.Version, i.GitCommit, i.BuildDate)
}

// String returns a multi-line summary for startup logs.
func (i Info) String() string {
	return fmt.Sprintf(
		"\tversion:\t%s\n\tbuild date:\t%s\n\tgit summary:\t%s\n\tgit branch:\t%s\n\tgit commit:\t%s\n\tgit state:\t%s",
		i.Version, i.BuildDate, i.GitSummary, i.GitBranch, i.GitCommit, i.GitState,
	)
}
