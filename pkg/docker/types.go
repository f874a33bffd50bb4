package docker

import (
	"fmt"
	"time"
)

// Container is a handle to a container created on the daemon. The ID is
// assigned by the daemon and never changes.
type Container struct {
	ID string
}

// Image is a handle to a built or pulled image, identified by tag or digest.
type Image struct {
	ID string
}

// Network is a handle to a network created on the daemon.
type Network struct {
	ID string
}

// ContainerCreationRequest describes the container to create. All fields
// except HealthCheck and User are expected to be populated by the caller.
type ContainerCreationRequest struct {
	Image            Image
	Network          Network
	Command          []string
	Hostname         string
	Name             string
	Environment      map[string]string
	WorkingDirectory string
	VolumeMounts     []VolumeMount
	PortMappings     []PortMapping
	HealthCheck      HealthCheckConfig
	User             string
}

// VolumeMount maps a local path into the container, with optional mount
// options (eg. "ro" or "cached").
type VolumeMount struct {
	LocalPath     string
	ContainerPath string
	Options       string
}

func (m VolumeMount) String() string {
	if m.Options == "" {
		return fmt.Sprintf("%s:%s", m.LocalPath, m.ContainerPath)
	}

	return fmt.Sprintf("%s:%s:%s", m.LocalPath, m.ContainerPath, m.Options)
}

// PortMapping publishes a container TCP port on a local port.
type PortMapping struct {
	LocalPort     int
	ContainerPort int
}

func (p PortMapping) String() string {
	return fmt.Sprintf("%d:%d", p.LocalPort, p.ContainerPort)
}

// HealthCheckConfig describes the health probe configured for a container.
// An empty Test means the container has no health check, regardless of the
// other fields.
type HealthCheckConfig struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	StartPeriod time.Duration
	Retries     int
}

// Disabled reports whether no health check is configured.
func (c HealthCheckConfig) Disabled() bool {
	return len(c.Test) == 0
}

// HealthCheckResult is the outcome of a single health probe run.
type HealthCheckResult struct {
	ExitCode int
	Output   string
}

// VersionInfo describes the daemon's reported version.
type VersionInfo struct {
	Version       string
	APIVersion    string
	MinAPIVersion string
	GitCommit     string
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (API: %s, minimum supported API: %s, commit: %s)", v.Version, v.APIVersion, v.MinAPIVersion, v.GitCommit)
}

// HealthStatus is the terminal outcome of a single health-check wait cycle.
type HealthStatus int

const (
	// NoHealthCheck means the container has no health check configured.
	NoHealthCheck HealthStatus = iota
	// BecameHealthy means the daemon reported the container healthy.
	BecameHealthy
	// BecameUnhealthy means the daemon gave up and reported the container unhealthy.
	BecameUnhealthy
	// Exited means the container stopped before reporting a health status.
	Exited
)

func (s HealthStatus) String() string {
	switch s {
	case NoHealthCheck:
		return "no health check"
	case BecameHealthy:
		return "became healthy"
	case BecameUnhealthy:
		return "became unhealthy"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("unknown health status (%d)", int(s))
	}
}

// BuildProgress is a single step progress notification emitted while an
// image build runs.
type BuildProgress struct {
	Step       int
	TotalSteps int
	Name       string
}

// BuildProgressCallback receives build progress notifications. It is called
// synchronously on the goroutine pumping build output, so it must not block.
type BuildProgressCallback func(BuildProgress)
