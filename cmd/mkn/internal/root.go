package internal

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/mkn/maiken/internal/app"
	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/logging"
	"github.com/mkn/maiken/internal/settings"
)

var (
	config       = settings.New()
	settingsFile string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:           "mkn",
	Short:         "mkn builds C and C++ projects described by mkn.yaml",
	Long:          `mkn resolves the dependency tree of a project, compiles and links every node of it, and can spread the work over remote build nodes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "Settings file (default $HOME/.maiken/settings.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

// loadSettings reads the settings and configures logging from them.
func loadSettings() (*settings.Settings, error) {
	s, err := settings.Load(config, settingsFile)
	if err != nil {
		return nil, err
	}
	logging.Init(s.Logging, verbose || s.Info)
	return s, nil
}

// newRegistry returns an application registry over the default compiler
// backends plus the aliases configured in s.
func newRegistry(s *settings.Settings) (*app.Registry, error) {
	compilers := compiler.NewRegistry()
	for name, base := range s.Compilers {
		if err := compilers.Alias(name, base); err != nil {
			return nil, err
		}
	}
	return app.NewRegistry(s, compilers), nil
}
