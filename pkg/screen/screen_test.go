package screen

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/device/mock"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCapture_DecodesAndCleansUp(t *testing.T) {
	tr := mock.New(mock.Config{Screen: solid(40, 20, color.White)})
	localDir := t.TempDir()
	c := New(tr, nil, WithLocalDir(localDir))

	img, err := c.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Errorf("image size = %v, want 40x20", img.Bounds())
	}

	if files := tr.DeviceFiles(); len(files) != 0 {
		t.Errorf("device temp files left behind: %v", files)
	}
	if left, _ := filepath.Glob(filepath.Join(localDir, "*")); len(left) != 0 {
		t.Errorf("host temp files left behind: %v", left)
	}

	capture := tr.CallsOf(mock.OpCapture)
	if len(capture) != 1 || !strings.HasPrefix(capture[0].Args[0], DefaultRemoteDir+"/anchor_") {
		t.Errorf("unexpected capture calls: %v", capture)
	}
}

func TestCapture_CropsToVisibleArea(t *testing.T) {
	m, err := mapping.New(true, core.Resolution{Width: 200, Height: 100}, core.Resolution{Width: 100, Height: 200})
	if err != nil {
		t.Fatal(err)
	}
	tr := mock.New(mock.Config{Screen: solid(200, 100, color.Black)})
	c := New(tr, m, WithLocalDir(t.TempDir()))

	img, err := c.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	// mapping width = 100*100/200 = 50, centered at left 75
	b := img.Bounds()
	if b.Dx() != 50 || b.Dy() != 100 || b.Min.X != 75 {
		t.Errorf("cropped bounds = %v, want 50x100 at x=75", b)
	}
}

func TestCapture_WarnsWhenScreenSmallerThanVisibleArea(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(nil)

	m, err := mapping.New(true, core.Resolution{Width: 200, Height: 100}, core.Resolution{Width: 100, Height: 200})
	if err != nil {
		t.Fatal(err)
	}
	// configured physical size does not match what the device returns
	tr := mock.New(mock.Config{Screen: solid(100, 60, color.Black)})
	c := New(tr, m, WithLocalDir(t.TempDir()))

	if _, err := c.Capture(); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !strings.Contains(buf.String(), "visible area") {
		t.Errorf("log = %q, want a visible area warning", buf.String())
	}
}

func TestCapture_TransportFailureStillRemoves(t *testing.T) {
	boom := core.ErrTransport.WithMessage("pull failed")
	tr := mock.New(mock.Config{FailOn: map[string]error{mock.OpPull: boom}})
	c := New(tr, nil, WithLocalDir(t.TempDir()))

	_, err := c.Capture()
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("Capture error = %v, want ErrTransport", err)
	}
	if tr.Count(mock.OpRemove) != 1 {
		t.Errorf("remove calls = %d, want 1", tr.Count(mock.OpRemove))
	}
	if files := tr.DeviceFiles(); len(files) != 0 {
		t.Errorf("device temp files left behind: %v", files)
	}
}

func TestRemoteTempPath_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p := RemoteTempPath("/data/local/tmp")
		if seen[p] {
			t.Fatalf("duplicate temp path %s", p)
		}
		seen[p] = true
	}
}

func TestSaveAndDecode(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "shot.png")
	if err := Save(solid(3, 2, color.White), file); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	img, err := Decode(file)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("decoded size = %v, want 3x2", img.Bounds())
	}
}
