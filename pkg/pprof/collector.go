package pprof

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"
)

// Collector records the profiles of one run.
type Collector struct {
	config *Config
	stamp  string

	mu      sync.Mutex
	running bool
	cpuFile *os.File
	files   []string
}

// NewCollector creates a new Collector.
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pprof config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := *cfg
	if len(c.Profiles) == 0 {
		c.Profiles = DefaultProfileTypes()
	}
	if c.Label == "" {
		c.Label = "run"
	}
	return &Collector{config: &c}, nil
}

// Start creates the output directory, starts the CPU profile and enables
// block and mutex sampling when requested.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("collector is already running")
	}
	if err := os.MkdirAll(c.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	c.stamp = time.Now().Format("20060102_150405")
	c.files = nil

	if c.config.HasProfile(ProfileCPU) {
		if c.config.CPURate > 0 {
			runtime.SetCPUProfileRate(c.config.CPURate)
		}
		f, err := os.Create(c.path(ProfileCPU))
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		c.cpuFile = f
	}
	if c.config.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(1)
	}
	if c.config.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(1)
	}

	c.running = true
	return nil
}

// Stop ends the CPU profile and writes every snapshot profile. It returns
// the first error but still attempts every profile.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	var errs []error
	if c.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := c.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		} else {
			c.files = append(c.files, c.cpuFile.Name())
		}
		c.cpuFile = nil
	}

	for _, pt := range c.config.Profiles {
		if pt == ProfileCPU {
			continue
		}
		if err := c.snapshot(pt); err != nil {
			errs = append(errs, err)
		}
	}

	if c.config.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(0)
	}
	if c.config.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(0)
	}
	return errors.Join(errs...)
}

func (c *Collector) snapshot(pt ProfileType) error {
	p := pprof.Lookup(string(pt))
	if p == nil {
		return fmt.Errorf("%s profile not found", pt)
	}
	if pt == ProfileHeap {
		runtime.GC()
	}

	path := c.path(pt)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile: %w", pt, err)
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s profile: %w", pt, err)
	}
	c.files = append(c.files, path)
	return nil
}

func (c *Collector) path(pt ProfileType) string {
	name := fmt.Sprintf("%s_%s_%s.pprof", c.config.Label, pt, c.stamp)
	return filepath.Join(c.config.OutputDir, name)
}

// Files returns the profile files written by the last Stop.
func (c *Collector) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// OutputDir returns the output directory.
func (c *Collector) OutputDir() string {
	return c.config.OutputDir
}
