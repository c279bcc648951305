package process

import "runtime"

// Platform turns logical command lines into the argv the host OS expects. It is computed
// once at startup and shared by every component that spawns processes.
type Platform struct {
	OS string
}

// CurrentPlatform returns the Platform of the running host.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS}
}

// IsWindows reports whether commands are routed through cmd.exe.
func (p Platform) IsWindows() bool {
	return p.OS == "windows"
}

// BuildCommand maps logical arguments to a concrete argv. On Windows commands go through
// "cmd /c" so that PATHEXT and .bat/.cmd shims resolve like they do in a shell.
func (p Platform) BuildCommand(args ...string) []string {
	if !p.IsWindows() {
		return append([]string(nil), args...)
	}
	argv := make([]string, 0, len(args)+2)
	argv = append(argv, "cmd", "/c")
	return append(argv, args...)
}

// InterpreterCandidates lists script runtime names to probe, most preferred first.
func (p Platform) InterpreterCandidates() []string {
	if p.IsWindows() {
		return []string{"python.exe", "python", "py.exe", "py"}
	}
	return []string{"python3", "python"}
}
