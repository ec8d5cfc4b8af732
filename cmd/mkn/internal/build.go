package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkn/maiken/internal/app"
	"github.com/mkn/maiken/internal/build"
	"github.com/mkn/maiken/internal/dist"
	"github.com/mkn/maiken/internal/settings"
)

var (
	buildDir      string
	buildProfiles string
	buildTest     bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the project and its dependencies",
	Long:  `Build compiles and links the project in the current directory, and every dependency it names, in dependency order.`,
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVarP(&buildDir, "directory", "C", ".", "Project directory")
	f.StringVarP(&buildProfiles, "profile", "p", "", "Comma separated profiles to build")
	f.BoolVarP(&buildTest, "test", "t", false, "Also build the tests of the project")
	f.BoolP("dry-run", "d", false, "Print commands instead of running them")
	f.Uint8P("optimise", "O", 0, "Optimisation level (0-9)")
	f.Uint8P("debug", "g", 0, "Debug level (0-9)")
	f.StringP("linker", "l", "", "Linker arguments added to the root project")
	f.StringP("all-linker", "L", "", "Linker arguments added to every project")
	f.Bool("nodes", false, "Distribute to the configured remote nodes")

	for key, flag := range map[string]string{
		"dry_run":       "dry-run",
		"optimise":      "optimise",
		"debug":         "debug",
		"linker":        "linker",
		"all_linker":    "all-linker",
		"nodes.enabled": "nodes",
	} {
		if err := config.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	reg, err := newRegistry(s)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	roots, err := reg.Create(ctx, app.Args{app.ArgDirectory: buildDir, app.ArgProfile: buildProfiles})
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	e := build.New(reg, distOptions(s)...)
	if err := e.Build(ctx, roots, build.Options{Test: buildTest}); err != nil {
		return fmt.Errorf("failed to build: %w", err)
	}
	return nil
}

// distOptions wires the remote nodes into the build when they are enabled.
func distOptions(s *settings.Settings) []build.Option {
	if !s.Nodes.Enabled || len(s.Nodes.Hosts) == 0 {
		return nil
	}
	return []build.Option{
		build.WithSender(dist.NewSender(s.Nodes.Hosts, s.Nodes.DrainTimeout, nil)),
		build.WithRemoteCompiler(dist.NewRemoteCompiler(s.Nodes.Hosts, nil)),
	}
}
