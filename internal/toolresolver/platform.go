package toolresolver

import (
	"bufio"
	"bytes"
	"os"
	"runtime"
	"strings"
)

// Platform identifies the host family for installation purposes.
type Platform int

const (
	Unsupported Platform = iota
	KaliLinux
	OtherLinux
	Windows
)

func (p Platform) String() string {
	switch p {
	case KaliLinux:
		return "kali_linux"
	case OtherLinux:
		return "other_linux"
	case Windows:
		return "windows"
	default:
		return "unsupported"
	}
}

// CanInstall reports whether the platform has an installer.
func (p Platform) CanInstall() bool {
	return p == KaliLinux || p == Windows
}

// unsupportedTools lists tools that cannot run on a platform at all.
var unsupportedTools = map[Platform][]string{
	Windows: {"setoolkit", "msfconsole"},
}

// Supports reports whether tool can run on the platform.
func (p Platform) Supports(tool string) bool {
	for _, t := range unsupportedTools[p] {
		if strings.EqualFold(t, tool) {
			return false
		}
	}
	return true
}

// DetectPlatform inspects the running host.
func DetectPlatform() Platform {
	osRelease, _ := os.ReadFile("/etc/os-release")
	return detectPlatform(runtime.GOOS, osRelease)
}

func detectPlatform(goos string, osRelease []byte) Platform {
	switch goos {
	case "windows":
		return Windows
	case "linux":
		if osReleaseID(osRelease) == "kali" {
			return KaliLinux
		}
		return OtherLinux
	default:
		return Unsupported
	}
}

func osReleaseID(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if ok && key == "ID" {
			return strings.ToLower(strings.Trim(value, `"'`))
		}
	}
	return ""
}
