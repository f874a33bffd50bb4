package docker

import (
	"fmt"
)

// APIError is a failure reported by the daemon's HTTP API: any non-2xx
// response. Message is extracted from the daemon's error envelope, which is
// either a JSON object with a "message" field or a plain-text body.
type APIError struct {
	Op         string
	Resource   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s failed: the daemon returned status %d: %s", e.Op, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s %s failed: the daemon returned status %d: %s", e.Op, e.Resource, e.StatusCode, e.Message)
}

// ContainerError wraps a failure of a container lifecycle operation.
type ContainerError struct {
	ID  string
	Op  string
	Err error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("could not %s container %s: %v", e.Op, e.ID, e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}

// NetworkError wraps a failure of a network lifecycle operation.
type NetworkError struct {
	ID  string
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("could not %s network: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("could not %s network %s: %v", e.Op, e.ID, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ImageBuildError is a failed image build. Output holds the verbatim build
// output so callers can show the user what failed.
type ImageBuildError struct {
	Output string
	Err    error
}

func (e *ImageBuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image build failed: %v", e.Err)
	}

	return fmt.Sprintf("image build failed. Output from Docker was: %s", e.Output)
}

func (e *ImageBuildError) Unwrap() error {
	return e.Err
}

// ImagePullError is a failed image pull, including failure of the local
// existence check that precedes the pull. Op distinguishes the two.
type ImagePullError struct {
	Name   string
	Op     string // "check for existing image" or "pull image"
	Output string
	Err    error
}

func (e *ImagePullError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not %s %s: %v", e.Op, e.Name, e.Err)
	}

	return fmt.Sprintf("could not %s %s. Output from Docker was: %s", e.Op, e.Name, e.Output)
}

func (e *ImagePullError) Unwrap() error {
	return e.Err
}

// HealthCheckError wraps a failure that occurred while evaluating a
// container's health, naming the step that failed.
type HealthCheckError struct {
	ContainerID string
	Step        string
	Err         error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("%s for container %s failed: %v", e.Step, e.ContainerID, e.Err)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}

func wrapContainerErr(op, id string, err error) error {
	if err == nil {
		return nil
	}

	return &ContainerError{ID: id, Op: op, Err: err}
}

func wrapNetworkErr(op, id string, err error) error {
	if err == nil {
		return nil
	}

	return &NetworkError{ID: id, Op: op, Err: err}
}
