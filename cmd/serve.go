// cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-editor/internal/config"
	"github.com/xkilldash9x/scalpel-editor/internal/observability"
	"github.com/xkilldash9x/scalpel-editor/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve editor sessions to remote UIs over websockets.",
		Long: `serve starts the websocket bridge. Every connection owns one editor
session; clients load documents, send commands and input, and receive
selection, document and panel pushes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SetServerAddr(addr)
			}
			logger := observability.GetLogger()
			srv := server.New(logger, serverConfig(cfg.Server()), sessionFactory(logger, cfg.Editor()))
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address, overrides server.addr")
	return cmd
}

func serverConfig(s config.ServerConfig) server.Config {
	return server.Config{
		Addr:            s.Addr,
		MaxMessageBytes: s.MaxMessageBytes,
		RateLimit:       s.RateLimit,
		RateBurst:       s.RateBurst,
		PongWait:        s.PongWait,
		WriteWait:       s.WriteWait,
		SendBuffer:      s.SendBuffer,
		AllowedOrigins:  s.AllowedOrigins,
		ShutdownTimeout: s.ShutdownTimeout,
	}
}
