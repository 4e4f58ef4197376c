// cmd/session.go
package cmd

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/imageload"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/config"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/session"
)

// runtimeConfig maps the editor section onto the guest descriptor.
func runtimeConfig(e config.EditorConfig) guest.Config {
	rc := guest.DefaultConfig()
	rc.DebounceMillis = e.DebounceMs
	rc.MinSize = e.MinSize
	rc.ImageMaxWidth = e.ImageMaxWidth
	rc.InsertX = e.InsertX
	rc.InsertY = e.InsertY
	rc.DuplicateOffset = e.DuplicateOffset
	rc.Canvas = e.Canvas
	return rc
}

// sessionFactory shares one style engine and one image loader across every
// session it builds.
func sessionFactory(logger *zap.Logger, e config.EditorConfig) func() *session.Session {
	styles := style.NewEngine(logger)
	loader := imageload.NewLoader(logger, e.ImageTimeout, e.ImageMaxBytes)
	rc := runtimeConfig(e)
	return func() *session.Session {
		return session.New(session.Options{
			Logger:       logger,
			Runtime:      rc,
			HistoryDepth: e.HistoryDepth,
			Prober:       loader,
			Styles:       styles,
		})
	}
}
