package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultCWebPBinary is the WebP encoder looked up when none is configured.
const DefaultCWebPBinary = "cwebp"

// ResolveCWebP reports the WebP encoder the codec will execute.
//
// An absolute binary path wins. Otherwise a binary of that name inside
// codecsPath is preferred, falling back to PATH lookup.
func ResolveCWebP(codecsPath, binary string) Status {
	result := Status{
		Name:        "cwebp",
		Description: "Required for WebP variants",
	}
	name := strings.TrimSpace(binary)
	if name == "" {
		name = DefaultCWebPBinary
	}

	if filepath.IsAbs(name) {
		result.Command = name
		if info, err := os.Stat(name); err == nil && isExecutable(info) {
			result.Available = true
			return result
		}
		result.Detail = fmt.Sprintf("binary %q not executable", name)
		return result
	}

	if dir := strings.TrimSpace(codecsPath); dir != "" {
		candidate := filepath.Join(dir, executableName(name))
		if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
			result.Command = candidate
			result.Available = true
			return result
		}
	}

	if resolved, err := exec.LookPath(name); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = name
	result.Detail = fmt.Sprintf("binary %q not found", name)
	return result
}

func executableName(base string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(base, ".exe") {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
