package sensors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/relabs-tech/dyno_computer/internal/dyno"
)

// PortInfo describes a serial device candidate.
type PortInfo struct {
	Device      string `json:"device"`
	Description string `json:"description"`
	VID         uint16 `json:"vid,omitempty"`
	PID         uint16 `json:"pid,omitempty"`
	HasUSBID    bool   `json:"has_usb_id"`
}

func (p PortInfo) String() string {
	if !p.HasUSBID {
		return fmt.Sprintf("%s: %s (VID:PID=?:?)", p.Device, p.Description)
	}
	return fmt.Sprintf("%s: %s (VID:PID=%04x:%04x)", p.Device, p.Description, p.VID, p.PID)
}

// PortScanner enumerates serial ports from sysfs (Linux) and /dev (macOS
// call-out devices).
type PortScanner struct {
	SysClassTTY string
	DevDir      string
}

// DefaultPortScanner scans the real system.
var DefaultPortScanner = PortScanner{SysClassTTY: "/sys/class/tty", DevDir: "/dev"}

// List returns the serial ports that are backed by hardware, sorted by
// device path.
func (s PortScanner) List() ([]PortInfo, error) {
	seen := make(map[string]bool)
	var ports []PortInfo

	entries, err := os.ReadDir(s.SysClassTTY)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list %s: %w", s.SysClassTTY, err)
	}
	for _, e := range entries {
		devLink := filepath.Join(s.SysClassTTY, e.Name(), "device")
		if _, err := os.Stat(devLink); err != nil {
			continue // virtual console, pty, ...
		}
		info := PortInfo{Device: filepath.Join(s.DevDir, e.Name())}
		if dir, ok := usbDeviceDir(devLink); ok {
			info.VID, info.HasUSBID = readHex(filepath.Join(dir, "idVendor"))
			info.PID, _ = readHex(filepath.Join(dir, "idProduct"))
			info.Description = readTrimmed(filepath.Join(dir, "product"))
		}
		if info.Description == "" {
			info.Description = e.Name()
		}
		ports = append(ports, info)
		seen[info.Device] = true
	}

	callouts, _ := filepath.Glob(filepath.Join(s.DevDir, "cu.*"))
	for _, dev := range callouts {
		if seen[dev] {
			continue
		}
		ports = append(ports, PortInfo{Device: dev, Description: strings.TrimPrefix(filepath.Base(dev), "cu.")})
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Device < ports[j].Device })
	return ports, nil
}

// usbDeviceDir walks up from a tty's device link to the USB device directory
// that carries idVendor.
func usbDeviceDir(devLink string) (string, bool) {
	dir, err := filepath.EvalSymlinks(devLink)
	if err != nil {
		return "", false
	}
	for i := 0; i < 4; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir, true
		}
		dir = filepath.Dir(dir)
	}
	return "", false
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readHex(path string) (uint16, bool) {
	v, err := strconv.ParseUint(readTrimmed(path), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// PickRollerPort chooses the sensor port: first by USB vendor ID, then by
// keyword in the device name or description, then the sole port.
func PickRollerPort(ports []PortInfo, keywords []string, vids []uint16) (string, bool) {
	for _, p := range ports {
		if !p.HasUSBID {
			continue
		}
		for _, vid := range vids {
			if p.VID == vid {
				return p.Device, true
			}
		}
	}
	for _, p := range ports {
		desc := strings.ToLower(p.Description)
		dev := strings.ToLower(p.Device)
		for _, kw := range keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(desc, kw) || strings.Contains(dev, kw) {
				return p.Device, true
			}
		}
	}
	if len(ports) == 1 {
		return ports[0].Device, true
	}
	return "", false
}

// FindRollerPort scans the system and picks the roller sensor port.
// The returned ports are the candidates that were considered.
func FindRollerPort(keywords []string, vids []uint16) (string, []PortInfo, error) {
	ports, err := DefaultPortScanner.List()
	if err != nil {
		return "", nil, err
	}
	if dev, ok := PickRollerPort(ports, keywords, vids); ok {
		return dev, ports, nil
	}
	return "", ports, dyno.ErrNoSource
}
