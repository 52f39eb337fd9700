package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"imgworker/internal/deps"
	"imgworker/internal/logging"
	"imgworker/internal/services"
	"imgworker/internal/stage"
)

// DefaultQuality matches the lossy encoder setting for JPEG and WebP.
const DefaultQuality = 75

// Options configures the imaging codec.
type Options struct {
	JPEGQuality int
	WebPQuality int
	// CWebPBinary names or locates the WebP encoder.
	CWebPBinary string
	// CodecsPath returns the directory searched for codec binaries. It is
	// consulted on every encode so set-config changes apply immediately.
	CodecsPath func() string
	Client     *http.Client
	Logger     *slog.Logger
}

// Imaging implements Codec.
type Imaging struct {
	jpegQuality int
	webpQuality int
	cwebp       string
	codecsPath  func() string
	client      *http.Client
	logger      *slog.Logger
}

// New constructs the imaging codec.
func New(opts Options) *Imaging {
	c := &Imaging{
		jpegQuality: clampQuality(opts.JPEGQuality),
		webpQuality: clampQuality(opts.WebPQuality),
		cwebp:       strings.TrimSpace(opts.CWebPBinary),
		codecsPath:  opts.CodecsPath,
		client:      opts.Client,
		logger:      logging.NewComponentLogger(opts.Logger, "codec"),
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.codecsPath == nil {
		c.codecsPath = func() string { return "" }
	}
	return c
}

func clampQuality(q int) int {
	if q <= 0 || q > 100 {
		return DefaultQuality
	}
	return q
}

// Decode loads and decodes a jpg, jpeg, or png source.
func (c *Imaging) Decode(ctx context.Context, source string) (image.Image, error) {
	if !decodable(Extension(source)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, source)
	}
	rc, err := c.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "codec", "decode", source, err)
	}
	return img, nil
}

func (c *Imaging) open(ctx context.Context, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return c.fetch(ctx, source)
		case "file":
			return c.openFile(u.Path)
		}
	}
	return c.openFile(source)
}

func (c *Imaging) fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "codec", "fetch", source, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "codec", "fetch", source, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, services.Wrap(services.ErrNotFound, "codec", "fetch", fmt.Sprintf("%s: status %d", source, resp.StatusCode), nil)
	}
	return resp.Body, nil
}

func (c *Imaging) openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "codec", "open", path, err)
	}
	return f, nil
}

// Encode renders img in the requested format.
func (c *Imaging) Encode(ctx context.Context, img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case JPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.jpegQuality)); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "codec", "encode jpg", "", err)
		}
	case PNG:
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "codec", "encode png", "", err)
		}
	case WebP:
		return c.encodeWebP(ctx, img)
	default:
		return nil, fmt.Errorf("%w: target %q", ErrUnsupported, format)
	}
	return buf.Bytes(), nil
}

// HealthCheck reports whether WebP output is possible. JPEG and PNG need no
// external tools.
func (c *Imaging) HealthCheck(context.Context) stage.Health {
	status := deps.ResolveCWebP(c.codecsPath(), c.cwebp)
	if !status.Available {
		return stage.Unhealthy("codec", "webp disabled: "+status.Detail)
	}
	return stage.Healthy("codec")
}

func (c *Imaging) encodeWebP(ctx context.Context, img image.Image) ([]byte, error) {
	status := deps.ResolveCWebP(c.codecsPath(), c.cwebp)
	if !status.Available {
		return nil, services.Wrap(services.ErrConfiguration, "codec", "encode webp", status.Detail, nil)
	}

	tmp, err := os.CreateTemp("", "imgworker-*.png")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "codec", "encode webp", "create temp file", err)
	}
	defer os.Remove(tmp.Name())
	if err := imaging.Encode(tmp, img, imaging.PNG, imaging.PNGCompressionLevel(png.NoCompression)); err != nil {
		tmp.Close()
		return nil, services.Wrap(services.ErrExternalTool, "codec", "encode webp", "stage source", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "codec", "encode webp", "close temp file", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, status.Command, "-quiet", "-q", strconv.Itoa(c.webpQuality), filepath.Clean(tmp.Name()), "-o", "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		c.logger.Debug("cwebp failed",
			logging.String("command", status.Command),
			logging.String("stderr", strings.TrimSpace(stderr.String())),
		)
		return nil, services.Wrap(services.ErrExternalTool, "codec", "encode webp", strings.TrimSpace(stderr.String()), err)
	}
	if stdout.Len() == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "codec", "encode webp", "encoder produced no output", nil)
	}
	return stdout.Bytes(), nil
}
