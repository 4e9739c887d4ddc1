// Package cvmatch is the host-side template matcher, built on OpenCV via gocv.
package cvmatch

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Matcher runs normalized cross-correlation on grayscale copies of both images.
type Matcher struct{}

// New returns a Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Match returns the centre of the best placement of target inside scanner,
// relative to the scanner's origin, and its score. A target larger than the
// scanner cannot match and yields zero confidence.
func (m *Matcher) Match(scanner, target image.Image) (x, y int, confidence float64, err error) {
	sb, tb := scanner.Bounds(), target.Bounds()
	if tb.Dx() == 0 || tb.Dy() == 0 {
		return 0, 0, 0, fmt.Errorf("empty target image")
	}
	if tb.Dx() > sb.Dx() || tb.Dy() > sb.Dy() {
		return 0, 0, 0, nil
	}

	screen, err := grayMat(scanner)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("convert screen: %w", err)
	}
	defer screen.Close()

	templ, err := grayMat(target)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("convert target: %w", err)
	}
	defer templ.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(screen, templ, &result, gocv.TmCcoeffNormed, mask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	return maxLoc.X + tb.Dx()/2, maxLoc.Y + tb.Dy()/2, clamp(float64(maxVal)), nil
}

func grayMat(img image.Image) (gocv.Mat, error) {
	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgb.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)
	return gray, nil
}

// clamp keeps the score in [0,1]; TM_CCOEFF_NORMED can go negative and a
// flat template produces NaN.
func clamp(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
