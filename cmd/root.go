// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/config"
	"github.com/xkilldash9x/scalpel-editor/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var errNoConfig = errors.New("configuration missing from command context")

// newRootCmd builds the command tree. Each call returns an independent tree
// so tests never share flag state.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "scalpel-editor",
		Short:         "Scalpel edits HTML documents through a sandboxed visual editor.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "scalpel-editor"})
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version))
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
	}
	root.SetVersionTemplate("{{.Name}} version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newApplyCmd())
	root.AddCommand(newPreviewCmd())
	return root
}

func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errNoConfig
	}
	return cfg, nil
}

// Execute runs the CLI until ctx ends.
func Execute(ctx context.Context) error {
	defer func() { _ = observability.Close() }()
	err := newRootCmd().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command failed.", zap.Error(err))
	}
	return err
}
