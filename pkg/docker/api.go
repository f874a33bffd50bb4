package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-connections/sockets"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAPIVersion is the daemon API version requests are pinned to.
	DefaultAPIVersion = "1.37"

	// defaultCallTimeout bounds create/start/inspect/network/version calls.
	defaultCallTimeout = 10 * time.Second

	// stopGracePeriodSeconds is how long the daemon waits for the container
	// to stop before killing it, passed as the "t" query parameter.
	stopGracePeriodSeconds = 10

	// stopCallTimeout must exceed the grace period so the HTTP call does not
	// give up while the daemon is still waiting for the container.
	stopCallTimeout = (stopGracePeriodSeconds + 1) * time.Second
)

// apiClient issues requests against the daemon's versioned HTTP API. It is
// stateless between calls apart from the underlying connection pool, so it
// is safe for concurrent use across independent resources.
type apiClient struct {
	http    *http.Client
	baseURL string
	logger  *logrus.Logger
}

func newAPIClient(host string, apiVersion string, logger *logrus.Logger) (*apiClient, error) {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	proto, addr, found := strings.Cut(host, "://")
	if !found {
		return nil, fmt.Errorf("invalid Docker host %q: expected a proto://address value", host)
	}

	transport := &http.Transport{}
	if err := sockets.ConfigureTransport(transport, proto, addr); err != nil {
		return nil, fmt.Errorf("failed to configure transport for Docker host %q: %w", host, err)
	}

	// For socket transports the URL host is a placeholder; the transport
	// dials the socket regardless of it.
	apiHost := addr
	if proto != "tcp" {
		apiHost = "docker"
	}

	return &apiClient{
		http:    &http.Client{Transport: transport},
		baseURL: fmt.Sprintf("http://%s/v%s", apiHost, apiVersion),
		logger:  logger,
	}, nil
}

// containerCreateBody is the daemon's schema for container creation: the
// container configuration inlined at the top level with host and networking
// configuration nested beside it.
type containerCreateBody struct {
	*container.Config
	HostConfig       *container.HostConfig
	NetworkingConfig *network.NetworkingConfig
}

func createBodyForRequest(request ContainerCreationRequest) (containerCreateBody, error) {
	env := make([]string, 0, len(request.Environment))
	for name, value := range request.Environment {
		env = append(env, name+"="+value)
	}
	sort.Strings(env)

	binds := make([]string, 0, len(request.VolumeMounts))
	for _, mount := range request.VolumeMounts {
		binds = append(binds, mount.String())
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}

	for _, mapping := range request.PortMappings {
		port, err := nat.NewPort("tcp", strconv.Itoa(mapping.ContainerPort))
		if err != nil {
			return containerCreateBody{}, fmt.Errorf("invalid container port %d: %w", mapping.ContainerPort, err)
		}

		exposedPorts[port] = struct{}{}
		portBindings[port] = []nat.PortBinding{
			{HostPort: strconv.Itoa(mapping.LocalPort)},
		}
	}

	var healthCheck *container.HealthConfig
	if !request.HealthCheck.Disabled() {
		healthCheck = &container.HealthConfig{
			Test:        request.HealthCheck.Test,
			Interval:    request.HealthCheck.Interval,
			Timeout:     request.HealthCheck.Timeout,
			StartPeriod: request.HealthCheck.StartPeriod,
			Retries:     request.HealthCheck.Retries,
		}
	}

	return containerCreateBody{
		Config: &container.Config{
			Image:        request.Image.ID,
			Cmd:          strslice.StrSlice(request.Command),
			Hostname:     request.Hostname,
			Env:          env,
			WorkingDir:   request.WorkingDirectory,
			ExposedPorts: exposedPorts,
			Healthcheck:  healthCheck,
			User:         request.User,
		},
		HostConfig: &container.HostConfig{
			Binds:        binds,
			PortBindings: portBindings,
			NetworkMode:  container.NetworkMode(request.Network.ID),
		},
		NetworkingConfig: &network.NetworkingConfig{},
	}, nil
}

func (c *apiClient) createContainer(ctx context.Context, request ContainerCreationRequest) (string, error) {
	body, err := createBodyForRequest(request)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	if request.Name != "" {
		query.Set("name", request.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	var response container.CreateResponse
	if err := c.do(ctx, http.MethodPost, "/containers/create", query, body, &response, "create container", request.Name); err != nil {
		return "", err
	}

	return response.ID, nil
}

func (c *apiClient) startContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	return c.do(ctx, http.MethodPost, "/containers/"+id+"/start", nil, nil, nil, "start container", id)
}

func (c *apiClient) stopContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, stopCallTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("t", strconv.Itoa(stopGracePeriodSeconds))

	return c.do(ctx, http.MethodPost, "/containers/"+id+"/stop", query, nil, nil, "stop container", id)
}

func (c *apiClient) removeContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("v", "1")
	query.Set("force", "1")

	return c.do(ctx, http.MethodDelete, "/containers/"+id, query, nil, nil, "remove container", id)
}

func (c *apiClient) inspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	var response types.ContainerJSON
	if err := c.do(ctx, http.MethodGet, "/containers/"+id+"/json", nil, nil, &response, "inspect container", id); err != nil {
		return types.ContainerJSON{}, err
	}

	return response, nil
}

func (c *apiClient) createNetwork(ctx context.Context, name string, driver string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	body := types.NetworkCreateRequest{
		Name: name,
		NetworkCreate: types.NetworkCreate{
			Driver:         driver,
			CheckDuplicate: true,
		},
	}

	var response types.NetworkCreateResponse
	if err := c.do(ctx, http.MethodPost, "/networks/create", nil, body, &response, "create network", name); err != nil {
		return "", err
	}

	return response.ID, nil
}

func (c *apiClient) deleteNetwork(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	return c.do(ctx, http.MethodDelete, "/networks/"+id, nil, nil, nil, "delete network", id)
}

func (c *apiClient) getVersion(ctx context.Context) (types.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	var response types.Version
	if err := c.do(ctx, http.MethodGet, "/version", nil, nil, &response, "get daemon version", ""); err != nil {
		return types.Version{}, err
	}

	return response, nil
}

// do issues a single API call. Non-2xx responses become an *APIError with
// the message extracted from the daemon's error envelope; 2xx responses are
// decoded into out when it is non-nil. The response body is consumed and
// closed on every path.
func (c *apiClient) do(ctx context.Context, method string, path string, query url.Values, body interface{}, out interface{}, op string, resource string) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s failed: could not encode request: %w", op, err)
		}

		reader = bytes.NewReader(encoded)
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.errorFromResponse(op, resource, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s failed: could not decode daemon response: %w", op, err)
	}

	return nil
}

// errorFromResponse extracts the daemon's error message before raising
// anything. The envelope is content-type dependent: JSON bodies carry the
// message in a "message" field, anything else is used verbatim.
func (c *apiClient) errorFromResponse(op string, resource string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s failed: the daemon returned status %d but the response body could not be read: %w", op, resp.StatusCode, err)
	}

	message := strings.TrimSpace(string(body))

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var envelope struct {
			Message string `json:"message"`
		}

		if err := json.Unmarshal(body, &envelope); err == nil {
			message = envelope.Message
		}
	}

	c.logger.WithFields(logrus.Fields{
		"operation": op,
		"resource":  resource,
		"status":    resp.StatusCode,
	}).Debug("Daemon API call failed")

	return &APIError{Op: op, Resource: resource, StatusCode: resp.StatusCode, Message: message}
}
