package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = ""
	commit  = ""
	date    = ""
)

// shortRevisionLen is how much of a VCS revision the version output shows.
const shortRevisionLen = 7

// buildInfo identifies the running binary.
type buildInfo struct {
	Version  string
	Commit   string
	Date     string
	Platform string
	Go       string
}

// readBuildInfo prefers ldflags values and falls back to the module and
// VCS data the Go toolchain embeds.
func readBuildInfo() buildInfo {
	info := buildInfo{
		Version:  version,
		Commit:   commit,
		Date:     date,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Go:       runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withEmbedded(bi.Main.Version, bi.Settings)
	}
	if info.Version == "" {
		info.Version = "(devel)"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// withEmbedded fills the fields ldflags left empty from embedded build data.
// A commit built from a modified tree gets a "-dirty" suffix.
func (b buildInfo) withEmbedded(mainVersion string, settings []debug.BuildSetting) buildInfo {
	if b.Version == "" {
		b.Version = mainVersion
	}
	if b.Commit != "" && b.Date != "" {
		return b
	}

	var revision, modified, vcsTime string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}
	if b.Commit == "" && revision != "" {
		b.Commit = revision[:min(len(revision), shortRevisionLen)]
		if modified == "true" {
			b.Commit += "-dirty"
		}
	}
	if b.Date == "" {
		b.Date = vcsTime
	}
	return b
}

// getVersion returns the version reported in reports and --version.
func getVersion() string {
	return readBuildInfo().Version
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version of crawlkit together with the commit, build date,
platform and Go toolchain it was built with. Use --short in scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			short, err := cmd.Flags().GetBool("short")
			if err != nil {
				return err
			}
			info := readBuildInfo()
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}
			fmt.Fprintf(out, "crawlkit %s\n", info.Version)
			fmt.Fprintf(out, "  commit    %s\n", info.Commit)
			fmt.Fprintf(out, "  built     %s\n", info.Date)
			fmt.Fprintf(out, "  platform  %s\n", info.Platform)
			fmt.Fprintf(out, "  go        %s\n", info.Go)
			return nil
		},
	}
	cmd.Flags().BoolP("short", "s", false, "Print only the version")
	return cmd
}
