// Package docker drives the Docker daemon's HTTP API and the docker CLI to
// build images, manage containers and networks, and observe container
// health. It is the only entry point other parts of the application use to
// talk to Docker.
package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/ekamara/batect/pkg/process"
)

// Client composes daemon API calls and docker CLI invocations into domain
// operations. All methods are synchronous; failures are reported as typed
// errors and never as raw transport errors.
type Client struct {
	api    *apiClient
	runner process.Runner
	logger *logrus.Logger

	stdinIsTerminal func() bool
}

// NewClient creates a client for the daemon at host (eg.
// "unix:///var/run/docker.sock"), pinned to the given API version. An empty
// apiVersion selects DefaultAPIVersion.
func NewClient(host string, apiVersion string, runner process.Runner, logger *logrus.Logger) (*Client, error) {
	api, err := newAPIClient(host, apiVersion, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:    api,
		runner: runner,
		logger: logger,
		stdinIsTerminal: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd())
		},
	}, nil
}

// Build builds an image from the given build context directory, reporting
// progress through onProgress as build steps start. Returns the identifier
// of the built image.
func (c *Client) Build(ctx context.Context, buildDirectory string, buildArgs map[string]string, onProgress BuildProgressCallback) (Image, error) {
	args := []string{"build"}

	argNames := make([]string, 0, len(buildArgs))
	for name := range buildArgs {
		argNames = append(argNames, name)
	}
	sort.Strings(argNames)

	for _, name := range argNames {
		args = append(args, "--build-arg", name+"="+buildArgs[name])
	}

	args = append(args, buildDirectory)

	result, err := c.runner.RunAndStream(func(line string) {
		if progress, ok := parseBuildStepLine(line); ok && onProgress != nil {
			onProgress(progress)
		}
	}, "docker", args...)

	if err != nil {
		return Image{}, &ImageBuildError{Err: err}
	}

	if result.ExitCode != 0 {
		return Image{}, &ImageBuildError{Output: result.Output}
	}

	id, ok := builtImageID(result.Output)
	if !ok {
		return Image{}, &ImageBuildError{Output: result.Output, Err: errors.New("the build output did not contain an image ID")}
	}

	c.logger.WithField("image", id).Debug("Image built")

	return Image{ID: id}, nil
}

// Pull ensures the named image is available locally, pulling it only if no
// image with that name already exists.
func (c *Client) Pull(ctx context.Context, imageName string) (Image, error) {
	result, err := c.runner.Run("docker", "images", "-q", imageName)
	if err != nil {
		return Image{}, &ImagePullError{Name: imageName, Op: "check for existing image", Err: err}
	}

	if result.ExitCode != 0 {
		return Image{}, &ImagePullError{Name: imageName, Op: "check for existing image", Output: result.Output}
	}

	if strings.TrimSpace(result.Output) != "" {
		c.logger.WithField("image", imageName).Debug("Image already exists locally, not pulling")
		return Image{ID: imageName}, nil
	}

	result, err = c.runner.Run("docker", "pull", imageName)
	if err != nil {
		return Image{}, &ImagePullError{Name: imageName, Op: "pull image", Err: err}
	}

	if result.ExitCode != 0 {
		return Image{}, &ImagePullError{Name: imageName, Op: "pull image", Output: result.Output}
	}

	c.logger.WithField("image", imageName).Debug("Image pulled")

	return Image{ID: imageName}, nil
}

// Create creates a container on the daemon and returns its handle.
func (c *Client) Create(ctx context.Context, request ContainerCreationRequest) (Container, error) {
	id, err := c.api.createContainer(ctx, request)
	if err != nil {
		return Container{}, wrapContainerErr("create", request.Name, err)
	}

	c.logger.WithFields(logrus.Fields{
		"container": id,
		"name":      request.Name,
		"image":     request.Image.ID,
	}).Debug("Container created")

	return Container{ID: id}, nil
}

// Run runs the container to completion with its output attached to the
// current terminal, and returns the container's exit code. When stdin is an
// interactive terminal it is attached as well.
func (c *Client) Run(ctx context.Context, dockerContainer Container) (int, error) {
	interactive := c.stdinIsTerminal()

	args := []string{"start", "--attach"}
	if interactive {
		args = append(args, "--interactive")
	}
	args = append(args, dockerContainer.ID)

	return c.runner.RunAttached(interactive, "docker", args...)
}

// Start starts a created container.
func (c *Client) Start(ctx context.Context, dockerContainer Container) error {
	return wrapContainerErr("start", dockerContainer.ID, c.api.startContainer(ctx, dockerContainer.ID))
}

// Stop stops a running container, allowing it a grace period to shut down.
func (c *Client) Stop(ctx context.Context, dockerContainer Container) error {
	return wrapContainerErr("stop", dockerContainer.ID, c.api.stopContainer(ctx, dockerContainer.ID))
}

// Remove removes a container and its anonymous volumes.
func (c *Client) Remove(ctx context.Context, dockerContainer Container) error {
	return wrapContainerErr("remove", dockerContainer.ID, c.api.removeContainer(ctx, dockerContainer.ID))
}

// CreateNewBridgeNetwork creates a bridge network with a name that is
// unique on the daemon.
func (c *Client) CreateNewBridgeNetwork(ctx context.Context) (Network, error) {
	name := uuid.New().String()

	id, err := c.api.createNetwork(ctx, name, "bridge")
	if err != nil {
		return Network{}, wrapNetworkErr("create", "", err)
	}

	c.logger.WithFields(logrus.Fields{
		"network": id,
		"name":    name,
	}).Debug("Network created")

	return Network{ID: id}, nil
}

// DeleteNetwork deletes a network created earlier.
func (c *Client) DeleteNetwork(ctx context.Context, network Network) error {
	return wrapNetworkErr("delete", network.ID, c.api.deleteNetwork(ctx, network.ID))
}

// VersionInfo returns the daemon's version information. This is a
// compatibility probe: callers treat a returned error as "version unknown"
// rather than aborting, so the error carries context but nothing panics.
func (c *Client) VersionInfo(ctx context.Context) (VersionInfo, error) {
	version, err := c.api.getVersion(ctx)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("could not get Docker version information: %w", err)
	}

	return VersionInfo{
		Version:       version.Version,
		APIVersion:    version.APIVersion,
		MinAPIVersion: version.MinAPIVersion,
		GitCommit:     version.GitCommit,
	}, nil
}

// Available reports whether Docker can be used at all. Every failure mode,
// including the docker executable not being installed, collapses to false:
// this is a pre-flight gate, not a diagnostic.
func (c *Client) Available(ctx context.Context) bool {
	result, err := c.runner.Run("docker", "version")
	if err != nil {
		return false
	}

	return result.ExitCode == 0
}
