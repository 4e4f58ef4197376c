// internal/browser/imageload/imageload.go
package imageload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	// Decoders for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"
)

// Size is an image's natural (intrinsic) size in pixels.
type Size struct {
	Width  int
	Height int
}

var (
	ErrUnsupportedScheme = errors.New("unsupported image source scheme")
	ErrEmptyImage        = errors.New("image has no intrinsic size")
)

// Prober reports the natural size of the image at src.
type Prober interface {
	Probe(ctx context.Context, src string) (Size, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, src string) (Size, error)

func (f ProberFunc) Probe(ctx context.Context, src string) (Size, error) { return f(ctx, src) }

// Loader probes data: URLs in process and fetches http(s) sources. Only as
// many bytes as the decoder needs for the header are read.
type Loader struct {
	logger   *zap.Logger
	client   *http.Client
	maxBytes int64
}

// NewLoader builds a Loader. A zero timeout means 10s; a zero maxBytes
// means 10 MiB.
func NewLoader(logger *zap.Logger, timeout time.Duration, maxBytes int64) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Loader{
		logger:   logger.Named("imageload"),
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Probe implements Prober.
func (l *Loader) Probe(ctx context.Context, src string) (Size, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		data, err := decodeDataURL(src)
		if err != nil {
			return Size{}, err
		}
		return decodeSize(bytes.NewReader(data))
	}

	u, err := url.Parse(src)
	if err != nil {
		return Size{}, fmt.Errorf("parsing image source: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Size{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Size{}, fmt.Errorf("building image request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Size{}, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Size{}, fmt.Errorf("fetching image: unexpected status %d", resp.StatusCode)
	}
	l.logger.Debug("Probing remote image.", zap.String("url", u.Redacted()), zap.String("content_type", resp.Header.Get("Content-Type")))
	return decodeSize(io.LimitReader(resp.Body, l.maxBytes))
}

func decodeSize(r io.Reader) (Size, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return Size{}, fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Size{}, ErrEmptyImage
	}
	return Size{Width: cfg.Width, Height: cfg.Height}, nil
}

// decodeDataURL returns the payload of a data: URL, base64 or percent-encoded.
func decodeDataURL(src string) ([]byte, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, errors.New("malformed data URL: missing comma")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some producers strip padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("decoding data URL: %w", err)
			}
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding data URL: %w", err)
	}
	return []byte(text), nil
}
