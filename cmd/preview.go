// cmd/preview.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-editor/internal/observability"
	"github.com/xkilldash9x/scalpel-editor/internal/preview"
)

func newPreviewCmd() *cobra.Command {
	var in, out string
	var headed bool

	cmd := &cobra.Command{
		Use:   "preview --in page.html --out page.png",
		Short: "Render a document to a PNG in headless Chrome.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if headed {
				cfg.SetPreviewHeadless(false)
			}
			doc, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			p := cfg.Preview()
			r := preview.NewRenderer(preview.Options{
				Logger:     observability.GetLogger(),
				ExecPath:   p.ExecPath,
				Headless:   p.Headless,
				DisableGPU: p.DisableGPU,
				Args:       p.Args,
				Width:      p.Width,
				Height:     p.Height,
				Timeout:    p.Timeout,
			})
			png, err := r.Render(cmd.Context(), string(doc))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("writing screenshot: %w", err)
			}
			cmd.Printf("Wrote %s (%d bytes).\n", out, len(png))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "document to render (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "preview.png", "PNG destination")
	cmd.Flags().BoolVar(&headed, "headed", false, "show the browser window")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
