package commands

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/store/sqlite"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildDate     string `json:"build_date"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
	SQLiteVersion string `json:"sqlite_version"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter()
			if short {
				if f.Format() == output.FormatJSON {
					return f.JSON(map[string]string{"version": Version})
				}
				return f.Println("%s", Version)
			}
			return printVersion(f, currentVersion())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}

// currentVersion fills in the commit and date from VCS stamping when the
// binary was built without -ldflags.
func currentVersion() VersionInfo {
	v := VersionInfo{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		SQLiteVersion: sqlite.LibraryVersion(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && v.GitCommit == "unknown":
			v.GitCommit = s.Value
			if len(v.GitCommit) > 12 {
				v.GitCommit = v.GitCommit[:12]
			}
		case s.Key == "vcs.time" && v.BuildDate == "unknown":
			v.BuildDate = s.Value
		}
	}
	return v
}

func printVersion(f *output.Formatter, v VersionInfo) error {
	if f.Format() == output.FormatJSON {
		return f.JSON(v)
	}

	f.Header("ppesync " + v.Version)
	f.Item("Commit", v.GitCommit)
	f.Item("Built", v.BuildDate)
	f.Item("Go", v.GoVersion+" "+v.Platform)
	f.Item("SQLite", v.SQLiteVersion)
	return nil
}
