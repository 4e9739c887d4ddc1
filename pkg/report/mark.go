package report

import (
	"image"
	"image/color"
	"image/draw"
)

var markColor = color.RGBA{R: 255, A: 255}

const markRadius = 12

// markPoint returns a copy of img with a red ring and crosshair at p.
func markPoint(img image.Image, p image.Point) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	for d := -markRadius; d <= markRadius; d++ {
		setIn(dst, p.X+d, p.Y)
		setIn(dst, p.X, p.Y+d)
	}
	r2min := (markRadius - 2) * (markRadius - 2)
	r2max := markRadius * markRadius
	for dy := -markRadius; dy <= markRadius; dy++ {
		for dx := -markRadius; dx <= markRadius; dx++ {
			d2 := dx*dx + dy*dy
			if d2 >= r2min && d2 <= r2max {
				setIn(dst, p.X+dx, p.Y+dy)
			}
		}
	}
	return dst
}

func setIn(img *image.RGBA, x, y int) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, markColor)
	}
}
