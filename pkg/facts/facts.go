package facts

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Facts is a snapshot of the build host, collected once per pass and
// handed read-only to probes.
type Facts struct {
	OS          OSFacts   `json:"os"`
	CPU         CPUFacts  `json:"cpu"`
	Tools       ToolFacts `json:"tools"`
	CollectedAt time.Time `json:"collected_at"`
}

// OSFacts contains operating system information.
type OSFacts struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	ID       string `json:"id,omitempty"`
	Version  string `json:"version,omitempty"`
	Name     string `json:"name,omitempty"`
	Kernel   string `json:"kernel,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// CPUFacts contains CPU information.
type CPUFacts struct {
	Count int `json:"count"`
}

// ToolFacts contains paths of toolchain binaries found in PATH.
type ToolFacts struct {
	CC        string `json:"cc,omitempty"`
	PkgConfig string `json:"pkg_config,omitempty"`
}

// Map flattens the snapshot into the namespaced form probes consume.
func (f *Facts) Map() map[string]interface{} {
	return map[string]interface{}{
		"os.platform": f.OS.Platform,
		"os.arch":     f.OS.Arch,
		"os.id":       f.OS.ID,
		"os.version":  f.OS.Version,
		"os.name":     f.OS.Name,
		"os.kernel":   f.OS.Kernel,
		"os.hostname": f.OS.Hostname,
		"cpu.count":   f.CPU.Count,
		"tools.cc":    f.Tools.CC,
		"tools.pkg_config": f.Tools.PkgConfig,
	}
}

// Collector gathers facts about the local host.
type Collector struct {
	logger zerolog.Logger

	// osReleasePath is overridable for tests.
	osReleasePath string
}

// NewCollector creates a facts collector.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:        logger.With().Str("component", "facts").Logger(),
		osReleasePath: "/etc/os-release",
	}
}

// Collect gathers the host snapshot. Individual sources that fail are
// logged and left empty; the snapshot itself is always returned.
func (c *Collector) Collect(ctx context.Context) (*Facts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	f := &Facts{
		OS: OSFacts{
			Platform: runtime.GOOS,
			Arch:     runtime.GOARCH,
		},
		CPU:         CPUFacts{Count: runtime.NumCPU()},
		CollectedAt: start,
	}

	c.collectOSRelease(f)
	c.collectKernel(f)
	c.collectHostname(f)
	c.collectTools(f)

	c.logger.Debug().
		Str("platform", f.OS.Platform).
		Str("arch", f.OS.Arch).
		Str("os_id", f.OS.ID).
		Dur("duration", time.Since(start)).
		Msg("Facts collected")

	return f, nil
}

func (c *Collector) collectOSRelease(f *Facts) {
	data, err := os.ReadFile(c.osReleasePath)
	if err != nil {
		// Fallback used by some distributions.
		data, err = os.ReadFile("/usr/lib/os-release")
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("No os-release file")
		return
	}

	rel := parseOSRelease(string(data))
	f.OS.ID = rel["ID"]
	f.OS.Version = rel["VERSION_ID"]
	f.OS.Name = rel["NAME"]
	if pretty := rel["PRETTY_NAME"]; pretty != "" {
		f.OS.Name = pretty
	}
}

func (c *Collector) collectKernel(f *Facts) {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return
	}
	f.OS.Kernel = strings.TrimSpace(string(data))
}

func (c *Collector) collectHostname(f *Facts) {
	hostname, err := os.Hostname()
	if err != nil {
		c.logger.Debug().Err(err).Msg("Failed to read hostname")
		return
	}
	f.OS.Hostname = hostname
}

func (c *Collector) collectTools(f *Facts) {
	if path, err := exec.LookPath("cc"); err == nil {
		f.Tools.CC = path
	} else if path, err := exec.LookPath("gcc"); err == nil {
		f.Tools.CC = path
	}
	if path, err := exec.LookPath("pkg-config"); err == nil {
		f.Tools.PkgConfig = path
	}
}

// parseOSRelease parses KEY=VALUE lines, stripping quotes and comments.
func parseOSRelease(content string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, "\"'")
		out[key] = value
	}
	return out
}
