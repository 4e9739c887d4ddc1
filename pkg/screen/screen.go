// Package screen captures device screenshots through a core.Transport.
package screen

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
)

// DefaultRemoteDir is the device directory used for temporary files.
const DefaultRemoteDir = "/data/local/tmp"

// Capturer obtains the current screen as a decoded image.
type Capturer struct {
	transport core.Transport
	mapper    *mapping.Mapper
	remoteDir string
	localDir  string
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithRemoteDir sets the device directory for temporary screenshots.
func WithRemoteDir(dir string) Option {
	return func(c *Capturer) {
		c.remoteDir = dir
	}
}

// WithLocalDir sets the host directory for pulled screenshots.
// Defaults to os.TempDir().
func WithLocalDir(dir string) Option {
	return func(c *Capturer) {
		c.localDir = dir
	}
}

// New creates a Capturer. A nil mapper disables cropping.
func New(t core.Transport, m *mapping.Mapper, opts ...Option) *Capturer {
	if m == nil {
		m = mapping.Identity()
	}
	c := &Capturer{transport: t, mapper: m, remoteDir: DefaultRemoteDir}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RemoteTempPath returns a collision-resistant device path for a PNG.
func RemoteTempPath(dir string) string {
	return path.Join(dir, "anchor_"+uuid.New().String()+".png")
}

// Capture takes a screenshot, pulls it to the host and decodes it. When
// remapping is enabled the image is cropped to the visible area. Device and
// host temporary files are removed on every path.
func (c *Capturer) Capture() (img image.Image, err error) {
	remote := RemoteTempPath(c.remoteDir)
	defer func() {
		if rmErr := c.transport.Remove(remote); rmErr != nil {
			logger.Warn("remove %s failed: %v", remote, rmErr)
		}
	}()

	local, err := os.CreateTemp(c.localDir, "anchor_screen_*.png")
	if err != nil {
		return nil, fmt.Errorf("create local screenshot file: %w", err)
	}
	localPath := local.Name()
	local.Close()
	defer RemoveLocal(localPath)

	if err := c.transport.CaptureScreenTo(remote); err != nil {
		return nil, err
	}
	if err := c.transport.Pull(remote, localPath); err != nil {
		return nil, err
	}

	img, err = Decode(localPath)
	if err != nil {
		return nil, core.ErrTransport.WithMessage("screenshot failed").WithCause(err)
	}
	if c.mapper.Enabled() {
		va := c.mapper.VisibleArea()
		img = Crop(img, va)
		if b := img.Bounds(); b.Dx() != va.Width() || b.Dy() != va.Height() {
			logger.Warn("screenshot covers %dx%d of the %dx%d visible area; check the physical resolution",
				b.Dx(), b.Dy(), va.Width(), va.Height())
		}
	}
	return img, nil
}

// Decode reads a PNG file.
func Decode(file string) (image.Image, error) {
	f, err := os.Open(file) //#nosec G304 -- path chosen by the caller or created by Capture
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	return img, nil
}

// Save writes img as PNG, creating parent directories.
func Save(img image.Image, file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	f, err := os.Create(file) //#nosec G304 -- user-provided output path
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Crop returns the part of img inside r (relative to img.Bounds().Min).
func Crop(img image.Image, r core.Rect) image.Image {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+r.Left, b.Min.Y+r.Top, b.Min.X+r.Right, b.Min.Y+r.Bottom).Intersect(b)
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			dst.Set(x, y, img.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return dst
}

// RemoveLocal deletes a host temp file, logging instead of failing.
func RemoveLocal(name string) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warn("local file %s not deleted: %v", name, err)
	}
}
