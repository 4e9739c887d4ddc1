package match

import (
	"image/png"
	"os"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// MatcherCommand is the on-device matcher binary.
const MatcherCommand = "cv"

// Remote matches on the device with the `cv match` command.
type Remote struct {
	transport core.Transport
	mapper    *mapping.Mapper
	remoteDir string
	localDir  string
}

// NewRemote creates an on-device strategy. Temporary files go under
// remoteDir on the device (screen.DefaultRemoteDir when empty).
func NewRemote(t core.Transport, m *mapping.Mapper, remoteDir string) *Remote {
	if m == nil {
		m = mapping.Identity()
	}
	if remoteDir == "" {
		remoteDir = screen.DefaultRemoteDir
	}
	return &Remote{transport: t, mapper: m, remoteDir: remoteDir}
}

// SetLocalDir sets the host directory for encoded in-memory targets.
// Defaults to os.TempDir().
func (r *Remote) SetLocalDir(dir string) {
	r.localDir = dir
}

// Name returns "remote".
func (r *Remote) Name() string { return "remote" }

// Locate pushes the target, captures the screen on the device and runs the
// matcher. Both device temp files are removed whatever happens.
func (r *Remote) Locate(target Target) (core.MatchOutcome, error) {
	if err := target.Validate(); err != nil {
		return core.NotFound(), err
	}

	screenPath := screen.RemoteTempPath(r.remoteDir)
	defer r.remove(screenPath)

	targetPath := target.Remote
	if target.Image != nil || target.Path != "" {
		targetPath = screen.RemoteTempPath(r.remoteDir)
		defer r.remove(targetPath)

		if err := r.push(target, targetPath); err != nil {
			return core.NotFound(), err
		}
	}

	if err := r.transport.CaptureScreenTo(screenPath); err != nil {
		return core.NotFound(), err
	}
	out, err := r.transport.ExecuteShell(MatcherCommand, "match", targetPath, screenPath)
	if err != nil {
		return core.NotFound(), err
	}
	return r.mapper.ParseRemoteMatch(out)
}

// push uploads the target, encoding an in-memory image to a host temp file
// first when needed.
func (r *Remote) push(target Target, remotePath string) error {
	if target.Image == nil {
		return r.transport.Push(target.Path, remotePath)
	}

	f, err := os.CreateTemp(r.localDir, "anchor_target_*.png")
	if err != nil {
		return err
	}
	localPath := f.Name()
	defer screen.RemoveLocal(localPath)

	if err := png.Encode(f, target.Image); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return r.transport.Push(localPath, remotePath)
}

func (r *Remote) remove(remotePath string) {
	if err := r.transport.Remove(remotePath); err != nil {
		logger.Warn("remove %s failed: %v", remotePath, err)
	}
}
