// Package diagnose reports on the host a preprocessing job runs on: operating
// system and architecture, available accelerator backend, and whether the
// tools the pipeline needs are installed.
package diagnose

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

type Platform struct {
	OS        string
	Arch      string
	GoVersion string
	NumCPU    int
}

func DetectPlatform() Platform {
	return Platform{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}
}

// Summary is a one line description of the platform family.
func (p Platform) Summary() string {
	switch p.OS {
	case "darwin":
		if p.Arch == "arm64" {
			return "Apple Silicon - Metal acceleration available"
		}
		return "Intel Mac - CPU only"
	case "linux":
		return "Linux - CUDA acceleration available if an NVIDIA GPU is present"
	case "windows":
		return "Windows"
	default:
		return fmt.Sprintf("Unknown platform %q", p.OS)
	}
}

func (p Platform) Recommendations() []string {
	switch p.OS {
	case "darwin":
		recs := []string{"Use ./setup.sh for automatic setup"}
		if p.Arch == "arm64" {
			recs = append(recs,
				"GPU acceleration via Metal Performance Shaders",
				"Training will be slower than CUDA but faster than CPU",
			)
		} else {
			recs = append(recs,
				"No GPU acceleration available",
				"Consider cloud training for serious work",
			)
		}
		return recs
	case "linux":
		return []string{
			"Use ./setup.sh for automatic setup",
			"CUDA GPU acceleration available if an NVIDIA GPU is present",
			"Full package compatibility",
		}
	case "windows":
		return []string{
			"Consider using WSL2",
			"Native Windows training may have package compatibility issues",
			"WSL2 provides a Linux environment with CUDA support",
		}
	default:
		return []string{
			"Try the standard setup.sh script",
			"May need manual package installation",
		}
	}
}

// Limitations lists known platform restrictions. Empty on Linux.
func (p Platform) Limitations() []string {
	if p.OS != "darwin" {
		return nil
	}
	return []string{
		"No CUDA support",
		"Some packages may not be available (e.g. bitsandbytes)",
		"Reduced training performance compared to Linux/CUDA",
	}
}

func (p Platform) WriteReport(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Operating System: %s\n", p.OS)
	fmt.Fprintf(&b, "Architecture: %s\n", p.Arch)
	fmt.Fprintf(&b, "Go Version: %s\n", p.GoVersion)
	fmt.Fprintf(&b, "CPUs: %d\n\n", p.NumCPU)
	fmt.Fprintf(&b, "%s\n", p.Summary())

	b.WriteString("Recommendations:\n")
	for _, r := range p.Recommendations() {
		fmt.Fprintf(&b, "  - %s\n", r)
	}

	if lim := p.Limitations(); len(lim) > 0 {
		b.WriteString("Limitations:\n")
		for _, l := range lim {
			fmt.Fprintf(&b, "  - %s\n", l)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
