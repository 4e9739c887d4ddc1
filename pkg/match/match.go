// Package match locates a target image on the device screen.
//
// Two strategies exist: Local decodes the screenshot on the host and runs a
// TemplateMatcher; Remote pushes the target to the device and runs the
// on-device `cv` matcher. The strategy is chosen once per session by Select.
package match

import (
	"fmt"
	"image"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
)

// Target is the image to look for. Exactly one source is used, in order of
// preference: Image, Path, Remote.
type Target struct {
	Path   string      // host file owned by the caller
	Image  image.Image // in-memory bitmap
	Remote string      // file already on the device, owned by the caller
}

// Validate checks that the target names at least one source.
func (t Target) Validate() error {
	if t.Image == nil && t.Path == "" && t.Remote == "" {
		return core.ErrInvalidArgument.WithMessage("match target needs an image, a path or a device path")
	}
	return nil
}

func (t Target) String() string {
	switch {
	case t.Path != "":
		return t.Path
	case t.Remote != "":
		return "device:" + t.Remote
	case t.Image != nil:
		return fmt.Sprintf("image %dx%d", t.Image.Bounds().Dx(), t.Image.Bounds().Dy())
	default:
		return "<empty>"
	}
}

// Strategy performs one match attempt. Found points are in override space.
type Strategy interface {
	Name() string
	Locate(target Target) (core.MatchOutcome, error)
}

// TemplateMatcher compares two images on the host. Coordinates are the
// centre of the best match relative to the scanner's origin; confidence is in
// [0,1] and zero when nothing comparable was found.
type TemplateMatcher interface {
	Match(scanner, target image.Image) (x, y int, confidence float64, err error)
}
