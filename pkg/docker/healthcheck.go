package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/sirupsen/logrus"
)

// healthEventTypes is the event set a health-check wait subscribes to: the
// container either reports a health status or dies first.
var healthEventTypes = []string{"die", "health_status"}

// healthCheckWaitTimeout bounds how long the daemon can need to settle on a
// health status: the start period, one interval per allowed retry, plus one
// full probe timeout as margin. Under-computing this causes false negatives,
// where the wait gives up before the daemon itself does.
func healthCheckWaitTimeout(check *container.HealthConfig) time.Duration {
	return check.StartPeriod + check.Interval*time.Duration(check.Retries) + check.Timeout
}

// HealthStatus performs one wait-and-classify cycle for the container's
// health check and returns one of the four terminal states. Containers
// without a configured health check short-circuit to NoHealthCheck without
// waiting for any event. Callers that want to poll repeatedly invoke this
// again; there is no retry loop here.
func (c *Client) HealthStatus(ctx context.Context, dockerContainer Container) (HealthStatus, error) {
	inspection, err := c.api.inspectContainer(ctx, dockerContainer.ID)
	if err != nil {
		return NoHealthCheck, &HealthCheckError{ContainerID: dockerContainer.ID, Step: "checking if a health check is configured", Err: err}
	}

	check := configuredHealthCheck(inspection.Config)
	if check == nil {
		return NoHealthCheck, nil
	}

	timeout := healthCheckWaitTimeout(check)

	c.logger.WithFields(logrus.Fields{
		"container": dockerContainer.ID,
		"timeout":   timeout.String(),
	}).Debug("Waiting for container to become healthy")

	event, err := c.api.waitForEvent(ctx, dockerContainer.ID, healthEventTypes, timeout)
	if err != nil {
		return NoHealthCheck, &HealthCheckError{ContainerID: dockerContainer.ID, Step: "waiting for health status", Err: err}
	}

	status, err := classifyHealthEvent(event.Status)
	if err != nil {
		return NoHealthCheck, &HealthCheckError{ContainerID: dockerContainer.ID, Step: "waiting for health status", Err: err}
	}

	return status, nil
}

func configuredHealthCheck(config *container.Config) *container.HealthConfig {
	if config == nil || config.Healthcheck == nil || len(config.Healthcheck.Test) == 0 {
		return nil
	}

	return config.Healthcheck
}

// classifyHealthEvent maps an event status string to a terminal state.
// "unhealthy" must be checked before "healthy" because the former contains
// the latter.
func classifyHealthEvent(status string) (HealthStatus, error) {
	switch {
	case strings.HasPrefix(status, "die"):
		return Exited, nil
	case strings.Contains(status, "unhealthy"):
		return BecameUnhealthy, nil
	case strings.Contains(status, "healthy"):
		return BecameHealthy, nil
	default:
		return NoHealthCheck, fmt.Errorf("unexpected event %q received", status)
	}
}

// LastHealthCheckResult returns the most recent health probe result for the
// container. The daemon reports the probe history oldest first and truncates
// it to a fixed window, so the last entry is the most recent.
func (c *Client) LastHealthCheckResult(ctx context.Context, dockerContainer Container) (HealthCheckResult, error) {
	inspection, err := c.api.inspectContainer(ctx, dockerContainer.ID)
	if err != nil {
		return HealthCheckResult{}, &HealthCheckError{ContainerID: dockerContainer.ID, Step: "retrieving the last health check result", Err: err}
	}

	if inspection.State == nil || inspection.State.Health == nil {
		return HealthCheckResult{}, &HealthCheckError{ContainerID: dockerContainer.ID, Step: "retrieving the last health check result", Err: errors.New("the container does not have a health check")}
	}

	log := inspection.State.Health.Log
	if len(log) == 0 {
		return HealthCheckResult{}, &HealthCheckError{ContainerID: dockerContainer.ID, Step: "retrieving the last health check result", Err: errors.New("the health check has not produced any results yet")}
	}

	last := log[len(log)-1]

	return HealthCheckResult{ExitCode: last.ExitCode, Output: last.Output}, nil
}
