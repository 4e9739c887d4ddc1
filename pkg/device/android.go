// Package device provides Android device access via ADB.
package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
)

// AndroidDevice drives an Android device through the adb binary.
// It implements core.Transport and core.LocaleTextInjector.
type AndroidDevice struct {
	serial    string
	adbPath   string
	host      string
	port      int
	displayID string
	run       runFunc
}

// DeviceInfo contains basic device information.
type DeviceInfo struct {
	Serial     string
	Model      string
	SDK        string
	Brand      string
	IsEmulator bool
}

// Options configures how adb reaches the device.
type Options struct {
	ADBPath   string // adb binary; default: looked up in PATH
	Host      string // adb server host (-H)
	Port      int    // adb server port (-P); 0 = adb default
	DisplayID string // screencap -d; empty = default display
}

// runFunc executes a command and returns stdout and stderr.
type runFunc func(name string, args ...string) (stdout, stderr []byte, err error)

func execRun(name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// New creates an AndroidDevice for the given serial.
// If serial is empty, it auto-detects the connected device.
func New(serial string, opts Options) (*AndroidDevice, error) {
	adbPath := opts.ADBPath
	if adbPath == "" {
		p, err := findADB()
		if err != nil {
			return nil, err
		}
		adbPath = p
	}

	d := &AndroidDevice{
		serial:    serial,
		adbPath:   adbPath,
		host:      opts.Host,
		port:      opts.Port,
		displayID: opts.DisplayID,
		run:       execRun,
	}

	// Auto-detect serial if not provided
	if d.serial == "" {
		devices, err := d.listDevices()
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		first, err := firstOnline(devices)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		d.serial = first.Serial
	}

	// Verify device is connected
	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}

	return d, nil
}

// Dial attaches adb to a network device at addr (host:port) and opens it.
func Dial(addr string, opts Options) (*AndroidDevice, error) {
	adbPath := opts.ADBPath
	if adbPath == "" {
		p, err := findADB()
		if err != nil {
			return nil, err
		}
		adbPath = p
	}

	d := &AndroidDevice{
		serial:    addr,
		adbPath:   adbPath,
		host:      opts.Host,
		port:      opts.Port,
		displayID: opts.DisplayID,
		run:       execRun,
	}
	if err := d.Connect(); err != nil {
		return nil, err
	}
	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, fmt.Errorf("device not found after connect: %w", err)
	}
	return d, nil
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// ExecuteShell executes a shell command on the device.
func (d *AndroidDevice) ExecuteShell(args ...string) (string, error) {
	out, err := d.adb(append([]string{"shell"}, args...)...)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(out, "\r\n", "\n"), nil
}

// Push copies a host file to the device.
func (d *AndroidDevice) Push(localPath, remotePath string) error {
	_, err := d.adb("push", localPath, remotePath)
	return err
}

// Pull copies a device file to the host.
func (d *AndroidDevice) Pull(remotePath, localPath string) error {
	_, err := d.adb("pull", remotePath, localPath)
	return err
}

// Remove deletes a device path.
func (d *AndroidDevice) Remove(remotePath string) error {
	_, err := d.ExecuteShell("rm", "-r", remotePath)
	return err
}

// CaptureScreenTo writes a PNG screenshot to remotePath on the device.
func (d *AndroidDevice) CaptureScreenTo(remotePath string) error {
	args := []string{"screencap", "-p", remotePath}
	if d.displayID != "" {
		args = append(args, "-d", d.displayID)
	}
	_, err := d.ExecuteShell(args...)
	return err
}

// InjectTap taps at a device coordinate.
func (d *AndroidDevice) InjectTap(x, y int) error {
	return d.input("tap", strconv.Itoa(x), strconv.Itoa(y))
}

// InjectSwipe swipes between two device coordinates.
func (d *AndroidDevice) InjectSwipe(x1, y1, x2, y2 int) error {
	return d.input("swipe", strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2))
}

// InjectText types ASCII text through `input text`.
func (d *AndroidDevice) InjectText(text string) error {
	return d.input("text", escapeText(text))
}

// InjectLocaleText types non-ASCII text through the device input method.
func (d *AndroidDevice) InjectLocaleText(text string) error {
	return d.input("chinese", escapeText(text))
}

// InjectKeyEvent sends a key code such as KEYCODE_BACK.
func (d *AndroidDevice) InjectKeyEvent(code string) error {
	return d.input("keyevent", code)
}

func (d *AndroidDevice) input(args ...string) error {
	_, err := d.ExecuteShell(append([]string{"input"}, args...)...)
	return err
}

// Which returns the device path of a command, or "" when absent.
func (d *AndroidDevice) Which(command string) (string, error) {
	out, err := d.ExecuteShell("which", command)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Connect attaches adb to a network device (serial is host:port).
func (d *AndroidDevice) Connect() error {
	out, _, err := d.run(d.adbPath, d.baseArgs(false, "connect", d.serial)...)
	if err != nil {
		return core.ErrTransport.WithMessage("adb connect " + d.serial).WithCause(err)
	}
	if strings.Contains(string(out), "unable to connect") {
		return core.ErrTransport.WithMessage("adb connect " + d.serial).WithCause(fmt.Errorf("%s", strings.TrimSpace(string(out))))
	}
	return nil
}

// StartActivity launches package/activity with am start -n.
func (d *AndroidDevice) StartActivity(pkg, activity string) error {
	_, err := d.ExecuteShell("am", "start", "-n", pkg+"/"+activity)
	return err
}

// ForceStop stops a package.
func (d *AndroidDevice) ForceStop(pkg string) error {
	_, err := d.ExecuteShell("am", "force-stop", pkg)
	return err
}

// Reboot reboots the device.
func (d *AndroidDevice) Reboot() error {
	_, err := d.adb("reboot")
	return err
}

// PowerOff powers the device off.
func (d *AndroidDevice) PowerOff() error {
	_, err := d.ExecuteShell("reboot", "-p")
	return err
}

var (
	_ core.Transport          = (*AndroidDevice)(nil)
	_ core.LocaleTextInjector = (*AndroidDevice)(nil)
	_ core.AppController      = (*AndroidDevice)(nil)
)

// Info returns device information.
func (d *AndroidDevice) Info() (DeviceInfo, error) {
	info := DeviceInfo{Serial: d.serial}

	if model, err := d.ExecuteShell("getprop", "ro.product.model"); err == nil {
		info.Model = strings.TrimSpace(model)
	}
	if sdk, err := d.ExecuteShell("getprop", "ro.build.version.sdk"); err == nil {
		info.SDK = strings.TrimSpace(sdk)
	}
	if brand, err := d.ExecuteShell("getprop", "ro.product.brand"); err == nil {
		info.Brand = strings.TrimSpace(brand)
	}

	// Check if emulator
	chars, _ := d.ExecuteShell("getprop", "ro.kernel.qemu")
	info.IsEmulator = strings.TrimSpace(chars) == "1"

	return info, nil
}

// ScreenSize reads the physical panel size from `wm size`.
func (d *AndroidDevice) ScreenSize() (core.Resolution, error) {
	out, err := d.ExecuteShell("wm", "size")
	if err != nil {
		return core.Resolution{}, err
	}
	return parseWMSize(out)
}

// parseWMSize extracts "Physical size: WxH" from `wm size` output.
func parseWMSize(out string) (core.Resolution, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Physical size:"); ok {
			return core.ParseResolution(strings.TrimSpace(rest))
		}
	}
	return core.Resolution{}, core.ErrTransport.WithMessage(fmt.Sprintf("unexpected wm size output %q", strings.TrimSpace(out)))
}

// baseArgs prepends the server and device selectors.
func (d *AndroidDevice) baseArgs(withSerial bool, args ...string) []string {
	cmdArgs := make([]string, 0, len(args)+6)
	if withSerial && d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	if d.host != "" {
		cmdArgs = append(cmdArgs, "-H", d.host)
	}
	if d.port > 0 {
		cmdArgs = append(cmdArgs, "-P", strconv.Itoa(d.port))
	}
	return append(cmdArgs, args...)
}

// adb executes an ADB command against this device.
func (d *AndroidDevice) adb(args ...string) (string, error) {
	stdout, stderr, err := d.run(d.adbPath, d.baseArgs(true, args...)...)
	if err != nil {
		errMsg := strings.TrimSpace(string(stderr))
		if errMsg == "" {
			errMsg = strings.TrimSpace(string(stdout))
		}
		logger.Debug("adb %s failed: %v: %s", strings.Join(args, " "), err, errMsg)
		return "", core.ErrTransport.
			WithMessage(fmt.Sprintf("adb %s", strings.Join(args, " "))).
			WithCause(fmt.Errorf("%w: %s", err, errMsg))
	}

	return string(stdout), nil
}

// waitForDevice waits for the device to be available.
func (d *AndroidDevice) waitForDevice(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.isConnected() {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for device %s", d.serial)
}

// isConnected checks if the device is connected.
func (d *AndroidDevice) isConnected() bool {
	out, err := d.adb("get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// escapeText escapes characters the device shell would otherwise split on.
func escapeText(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), " ", `\ `)
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK platform-tools are installed")
}
