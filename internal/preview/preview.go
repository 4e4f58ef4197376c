// internal/preview/preview.go
package preview

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/host"
)

// ErrNoBrowser is returned when no Chrome executable can be found.
var ErrNoBrowser = errors.New("no chrome executable found")

// Known executable names, most specific first.
var chromeNames = []string{
	"headless-shell", "google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome",
}

// FindChrome looks for a Chrome executable on PATH.
func FindChrome() (string, bool) {
	for _, name := range chromeNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}

// Options configures a Renderer.
type Options struct {
	Logger *zap.Logger
	// ExecPath overrides executable discovery.
	ExecPath   string
	Headless   bool
	DisableGPU bool
	// Args are extra Chrome switches, "name" or "name=value", with or
	// without the leading dashes.
	Args    []string
	Width   int64
	Height  int64
	Timeout time.Duration
}

// Renderer screenshots documents in headless Chrome. Each Render runs its
// own browser process.
type Renderer struct {
	logger *zap.Logger
	opts   Options
}

// NewRenderer fills unset sizes with the design canvas.
func NewRenderer(opts Options) *Renderer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Width <= 0 {
		opts.Width = int64(host.DesignWidth)
	}
	if opts.Height <= 0 {
		opts.Height = int64(host.DesignHeight)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Renderer{logger: logger.Named("preview"), opts: opts}
}

// ExecOptions translates the options into allocator options.
func (r *Renderer) ExecOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(int(r.opts.Width), int(r.opts.Height)),
	)
	if r.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.opts.ExecPath))
	}
	if r.opts.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if r.opts.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	for _, arg := range r.opts.Args {
		name, value := parseSwitch(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseSwitch splits a Chrome switch. Bare switches are boolean.
func parseSwitch(arg string) (string, any) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil
	}
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return name, true
	}
	return name, value
}

// Render loads document, which may be a fragment, and returns a PNG of the
// viewport.
func (r *Renderer) Render(ctx context.Context, document string) ([]byte, error) {
	if r.opts.ExecPath == "" {
		if _, ok := FindChrome(); !ok {
			return nil, ErrNoBrowser
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.ExecOptions()...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(r.logger.Sugar().Debugf))
	defer browserCancel()

	doc := host.WrapDocument(document)
	var shot []byte
	start := time.Now()
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(r.opts.Width, r.opts.Height),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		return nil, fmt.Errorf("rendering preview: %w", err)
	}
	r.logger.Debug("Preview rendered.",
		zap.Int("bytes", len(shot)), zap.Duration("elapsed", time.Since(start)))
	return shot, nil
}
