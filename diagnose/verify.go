package diagnose

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type CheckKind string

const (
	KindExecutable  CheckKind = "executable"
	KindWritableDir CheckKind = "writable-dir"
)

// Check is one environment requirement. Optional checks are reported but do
// not fail verification.
type Check struct {
	Name     string    `mapstructure:"name"`
	Kind     CheckKind `mapstructure:"kind"`
	Target   string    `mapstructure:"target"`
	Optional bool      `mapstructure:"optional"`
}

type Result struct {
	Check  Check
	OK     bool
	Detail string
}

type Report struct {
	Results []Result
	Backend Backend
}

// OK reports whether every required check passed.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the required checks that did not pass.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK && !res.Check.Optional {
			failed = append(failed, res)
		}
	}
	return failed
}

// DefaultChecks covers the tools a training host is expected to provide.
func DefaultChecks(cacheDir string) []Check {
	return []Check{
		{Name: "python3", Kind: KindExecutable, Target: "python3"},
		{Name: "pip", Kind: KindExecutable, Target: "pip3", Optional: true},
		{Name: "git", Kind: KindExecutable, Target: "git", Optional: true},
		{Name: "nvidia-smi", Kind: KindExecutable, Target: "nvidia-smi", Optional: true},
		{Name: "image cache", Kind: KindWritableDir, Target: cacheDir},
	}
}

// Verify runs checks in order. Once ctx is done the remaining checks are
// marked failed and the backend is not probed.
func Verify(ctx context.Context, checks []Check) Report {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Check: c, Detail: err.Error()})
			continue
		}
		results = append(results, runCheck(c))
	}

	if ctx.Err() != nil {
		return Report{Results: results}
	}

	return Report{
		Results: results,
		Backend: DetectBackend(ctx),
	}
}

func runCheck(c Check) Result {
	switch c.Kind {
	case KindExecutable:
		path, err := exec.LookPath(c.Target)
		if err != nil {
			return Result{Check: c, Detail: "not installed or not in PATH"}
		}
		return Result{Check: c, OK: true, Detail: path}
	case KindWritableDir:
		if err := checkWritable(c.Target); err != nil {
			return Result{Check: c, Detail: err.Error()}
		}
		return Result{Check: c, OK: true, Detail: c.Target}
	default:
		return Result{Check: c, Detail: fmt.Sprintf("unknown check kind %q", c.Kind)}
	}
}

func checkWritable(dir string) error {
	if dir == "" {
		return fmt.Errorf("no directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func (r Report) WriteReport(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Checking environment:\n")
	for _, res := range r.Results {
		mark := "ok"
		switch {
		case !res.OK && res.Check.Optional:
			mark = "warn"
		case !res.OK:
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s - %s\n", mark, res.Check.Name, res.Detail)
	}

	fmt.Fprintf(&b, "\nAccelerator: %s\n", r.Backend)
	for _, h := range Hints(r.Backend, DetectPlatform().OS) {
		fmt.Fprintf(&b, "  - %s\n", h)
	}

	if r.OK() {
		b.WriteString("\nAll required checks passed.\n")
	} else {
		fmt.Fprintf(&b, "\n%d check(s) failed.\n", len(r.Failed()))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
