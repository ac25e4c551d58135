package diagnose

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	detectTimeout   = 10 * time.Second
	backendCacheTTL = 5 * time.Minute
	backendCacheKey = "backend"
)

type BackendType int

const (
	BackendCPU BackendType = iota
	BackendCUDA
	BackendROCm
	BackendMetal
)

func (t BackendType) String() string {
	switch t {
	case BackendCPU:
		return "CPU"
	case BackendCUDA:
		return "CUDA"
	case BackendROCm:
		return "ROCm"
	case BackendMetal:
		return "Metal"
	default:
		return "Unknown"
	}
}

type Backend struct {
	Type    BackendType
	Name    string
	Devices int
	Driver  string
}

func (b Backend) Accelerated() bool {
	return b.Type != BackendCPU
}

func (b Backend) String() string {
	if !b.Accelerated() {
		return "CPU only - no accelerator detected"
	}
	s := b.Type.String() + ": " + b.Name
	if b.Devices > 1 {
		s += fmt.Sprintf(" (%d devices)", b.Devices)
	}
	if b.Driver != "" {
		s += " [driver " + b.Driver + "]"
	}
	return s
}

// runCommand is swapped out in tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var backendCache = gocache.New(backendCacheTTL, 2*backendCacheTTL)

// DetectBackend probes, in order, for CUDA, ROCm and Metal and falls back to
// CPU. Results are cached for five minutes. A probe cut short by cancellation
// or timeout is returned but not cached.
func DetectBackend(ctx context.Context) Backend {
	if v, ok := backendCache.Get(backendCacheKey); ok {
		return v.(Backend)
	}

	b, err := detectBackend(ctx, runtime.GOOS, runtime.GOARCH)
	if err == nil {
		backendCache.SetDefault(backendCacheKey, b)
	}
	return b
}

// ClearBackendCache forces the next DetectBackend call to probe again.
func ClearBackendCache() {
	backendCache.Flush()
}

// detectBackend returns ctx.Err() when the probes ran against a dead context,
// in which case the CPU fallback is not trustworthy.
func detectBackend(ctx context.Context, goos, goarch string) (Backend, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, detectTimeout)
		defer cancel()
	}

	if b, ok := detectCUDA(ctx); ok {
		return b, nil
	}
	if goos == "linux" {
		if b, ok := detectROCm(ctx); ok {
			return b, nil
		}
	}
	if goos == "darwin" && goarch == "arm64" {
		return Backend{Type: BackendMetal, Name: "Apple Silicon", Devices: 1}, nil
	}
	return Backend{Type: BackendCPU}, ctx.Err()
}

func detectCUDA(ctx context.Context) (Backend, bool) {
	out, err := runCommand(ctx, "nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader")
	if err != nil {
		return Backend{}, false
	}

	var names []string
	driver := ""
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		parts := strings.Split(line, ", ")
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
			continue
		}
		names = append(names, strings.TrimSpace(parts[0]))
		driver = strings.TrimSpace(parts[1])
	}
	if len(names) == 0 {
		return Backend{}, false
	}

	return Backend{
		Type:    BackendCUDA,
		Name:    "NVIDIA " + names[0],
		Devices: len(names),
		Driver:  driver,
	}, true
}

func detectROCm(ctx context.Context) (Backend, bool) {
	out, err := runCommand(ctx, "rocm-smi", "--showproductname")
	if err != nil {
		return Backend{}, false
	}

	name := "AMD GPU"
	devices := 0
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "Card series:") {
			continue
		}
		devices++
		if devices == 1 {
			if parts := strings.SplitN(line, ":", 3); len(parts) == 3 {
				name = "AMD " + strings.TrimSpace(parts[2])
			}
		}
	}

	return Backend{Type: BackendROCm, Name: name, Devices: max(1, devices)}, true
}

// Hints explains likely reasons for a CPU-only result.
func Hints(b Backend, goos string) []string {
	if b.Accelerated() {
		return nil
	}

	var hints []string
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		hints = append(hints, "NVIDIA: nvidia-smi not in PATH - NVIDIA drivers may not be installed")
	}
	if goos == "linux" {
		if _, err := exec.LookPath("rocm-smi"); err != nil {
			hints = append(hints, "AMD: ROCm not installed")
		}
	}
	if goos == "darwin" {
		hints = append(hints, "Metal requires Apple Silicon")
	}
	if len(hints) == 0 {
		hints = append(hints, "No GPU detected - ensure GPU drivers are properly installed")
	}
	return hints
}
