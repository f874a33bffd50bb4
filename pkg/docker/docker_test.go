package docker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ekamara/batect/pkg/process"
)

// fakeRunner is an in-memory process.Runner keyed by the full command line.
type fakeRunner struct {
	results     map[string]process.Result
	errs        map[string]error
	streamLines map[string][]string
	calls       []string

	attachedExitCode    int
	attachedInteractive bool
	attachedArgs        []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results:     map[string]process.Result{},
		errs:        map[string]error{},
		streamLines: map[string][]string{},
	}
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (r *fakeRunner) Run(name string, args ...string) (process.Result, error) {
	key := commandLine(name, args)
	r.calls = append(r.calls, key)

	if err, ok := r.errs[key]; ok {
		return process.Result{}, err
	}

	return r.results[key], nil
}

func (r *fakeRunner) RunAndStream(onLine func(string), name string, args ...string) (process.Result, error) {
	key := commandLine(name, args)
	r.calls = append(r.calls, key)

	if err, ok := r.errs[key]; ok {
		return process.Result{}, err
	}

	for _, line := range r.streamLines[key] {
		onLine(line)
	}

	return r.results[key], nil
}

func (r *fakeRunner) RunAttached(interactive bool, name string, args ...string) (int, error) {
	r.calls = append(r.calls, commandLine(name, args))
	r.attachedInteractive = interactive
	r.attachedArgs = args

	return r.attachedExitCode, nil
}

// newTestClient builds a Client against an httptest-backed daemon and the
// given runner.
func newTestClient(t *testing.T, handler http.Handler, runner process.Runner) *Client {
	t.Helper()

	return &Client{
		api:             newTestAPIClient(t, handler),
		runner:          runner,
		logger:          testLogger(),
		stdinIsTerminal: func() bool { return false },
	}
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

func TestBuildEmitsProgressAndReturnsLastImageID(t *testing.T) {
	runner := newFakeRunner()

	output := []string{
		"Step 1/2 : FROM alpine:3.18",
		" ---> Using cache",
		"Successfully built 1234567890ab",
		"Step 2/2 : RUN echo hello",
		"Successfully built fedcba098765",
	}

	key := "docker build --build-arg FIRST=1 --build-arg SECOND=2 /some/dir"
	runner.streamLines[key] = output
	runner.results[key] = process.Result{ExitCode: 0, Output: strings.Join(output, "\n") + "\n"}

	client := newTestClient(t, notFoundHandler(), runner)

	var progress []BuildProgress
	image, err := client.Build(context.Background(), "/some/dir", map[string]string{"SECOND": "2", "FIRST": "1"}, func(p BuildProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if image.ID != "fedcba098765" {
		t.Errorf("Expected the last built image ID, got '%s'", image.ID)
	}

	expected := []BuildProgress{
		{Step: 1, TotalSteps: 2, Name: "FROM alpine:3.18"},
		{Step: 2, TotalSteps: 2, Name: "RUN echo hello"},
	}

	if len(progress) != len(expected) {
		t.Fatalf("Expected %d progress events, got %d: %v", len(expected), len(progress), progress)
	}

	for i, p := range progress {
		if p != expected[i] {
			t.Errorf("Expected progress event %d to be %+v, got %+v", i, expected[i], p)
		}
	}
}

func TestBuildFailureCarriesOutput(t *testing.T) {
	runner := newFakeRunner()

	key := "docker build /some/dir"
	runner.streamLines[key] = []string{"Step 1/1 : RUN false", "command failed"}
	runner.results[key] = process.Result{ExitCode: 1, Output: "Step 1/1 : RUN false\ncommand failed\n"}

	client := newTestClient(t, notFoundHandler(), runner)

	progressSeen := false
	_, err := client.Build(context.Background(), "/some/dir", nil, func(BuildProgress) {
		progressSeen = true
	})

	var buildErr *ImageBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Expected an *ImageBuildError, got %T: %v", err, err)
	}

	if buildErr.Output != "Step 1/1 : RUN false\ncommand failed\n" {
		t.Errorf("Expected the exact captured output, got '%s'", buildErr.Output)
	}

	if !progressSeen {
		t.Error("Expected progress events before the failure")
	}
}

func TestBuildWithNoImageIDInOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.results["docker build /some/dir"] = process.Result{ExitCode: 0, Output: "nothing useful\n"}

	client := newTestClient(t, notFoundHandler(), runner)

	_, err := client.Build(context.Background(), "/some/dir", nil, nil)

	var buildErr *ImageBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Expected an *ImageBuildError, got %T: %v", err, err)
	}
}

func TestPullSkipsExistingImage(t *testing.T) {
	runner := newFakeRunner()
	runner.results["docker images -q alpine:3.18"] = process.Result{ExitCode: 0, Output: "abc123def456\n"}

	client := newTestClient(t, notFoundHandler(), runner)

	image, err := client.Pull(context.Background(), "alpine:3.18")
	if err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}

	if image.ID != "alpine:3.18" {
		t.Errorf("Expected image reference 'alpine:3.18', got '%s'", image.ID)
	}

	for _, call := range runner.calls {
		if strings.HasPrefix(call, "docker pull") {
			t.Errorf("Expected no pull for an image that already exists, saw '%s'", call)
		}
	}
}

func TestPullFetchesMissingImage(t *testing.T) {
	runner := newFakeRunner()
	runner.results["docker images -q alpine:3.18"] = process.Result{ExitCode: 0, Output: "\n"}
	runner.results["docker pull alpine:3.18"] = process.Result{ExitCode: 0, Output: "pulled"}

	client := newTestClient(t, notFoundHandler(), runner)

	image, err := client.Pull(context.Background(), "alpine:3.18")
	if err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}

	if image.ID != "alpine:3.18" {
		t.Errorf("Expected image reference 'alpine:3.18', got '%s'", image.ID)
	}

	pulled := false
	for _, call := range runner.calls {
		if call == "docker pull alpine:3.18" {
			pulled = true
		}
	}

	if !pulled {
		t.Error("Expected the image to be pulled")
	}
}

func TestPullExistenceCheckFailureIsDistinct(t *testing.T) {
	runner := newFakeRunner()
	runner.results["docker images -q alpine:3.18"] = process.Result{ExitCode: 1, Output: "daemon not running"}

	client := newTestClient(t, notFoundHandler(), runner)

	_, err := client.Pull(context.Background(), "alpine:3.18")

	var pullErr *ImagePullError
	if !errors.As(err, &pullErr) {
		t.Fatalf("Expected an *ImagePullError, got %T: %v", err, err)
	}

	if pullErr.Op != "check for existing image" {
		t.Errorf("Expected the existence check to be identified, got '%s'", pullErr.Op)
	}
}

func TestPullProcessFailureCarriesOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.results["docker images -q alpine:3.18"] = process.Result{ExitCode: 0, Output: ""}
	runner.results["docker pull alpine:3.18"] = process.Result{ExitCode: 1, Output: "manifest unknown"}

	client := newTestClient(t, notFoundHandler(), runner)

	_, err := client.Pull(context.Background(), "alpine:3.18")

	var pullErr *ImagePullError
	if !errors.As(err, &pullErr) {
		t.Fatalf("Expected an *ImagePullError, got %T: %v", err, err)
	}

	if pullErr.Op != "pull image" || pullErr.Output != "manifest unknown" {
		t.Errorf("Expected pull failure with output, got %+v", pullErr)
	}
}

func TestCreateContainerTranslatesDaemonError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"message": "name already in use"}`)
	}), newFakeRunner())

	_, err := client.Create(context.Background(), ContainerCreationRequest{Image: Image{ID: "some-image"}, Name: "some-container"})

	var containerErr *ContainerError
	if !errors.As(err, &containerErr) {
		t.Fatalf("Expected a *ContainerError, got %T: %v", err, err)
	}

	if containerErr.Op != "create" {
		t.Errorf("Expected op 'create', got '%s'", containerErr.Op)
	}

	if !strings.Contains(err.Error(), "name already in use") {
		t.Errorf("Expected the daemon message to be carried, got: %v", err)
	}
}

func TestStartStopRemoveWrapErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message": "no such container"}`)
	}), newFakeRunner())

	testCases := []struct {
		op   string
		call func() error
	}{
		{"start", func() error { return client.Start(context.Background(), Container{ID: "abc123"}) }},
		{"stop", func() error { return client.Stop(context.Background(), Container{ID: "abc123"}) }},
		{"remove", func() error { return client.Remove(context.Background(), Container{ID: "abc123"}) }},
	}

	for _, testCase := range testCases {
		t.Run(testCase.op, func(t *testing.T) {
			err := testCase.call()

			var containerErr *ContainerError
			if !errors.As(err, &containerErr) {
				t.Fatalf("Expected a *ContainerError, got %T: %v", err, err)
			}

			if containerErr.Op != testCase.op || containerErr.ID != "abc123" {
				t.Errorf("Expected op '%s' on container abc123, got %+v", testCase.op, containerErr)
			}
		})
	}
}

func TestRunInteractiveAttachesStdin(t *testing.T) {
	runner := newFakeRunner()
	runner.attachedExitCode = 123

	client := newTestClient(t, notFoundHandler(), runner)
	client.stdinIsTerminal = func() bool { return true }

	exitCode, err := client.Run(context.Background(), Container{ID: "abc123"})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if exitCode != 123 {
		t.Errorf("Expected the container's exit code 123, got %d", exitCode)
	}

	if !runner.attachedInteractive {
		t.Error("Expected an interactive invocation when stdin is a terminal")
	}

	expected := "start --attach --interactive abc123"
	if strings.Join(runner.attachedArgs, " ") != expected {
		t.Errorf("Expected args '%s', got '%s'", expected, strings.Join(runner.attachedArgs, " "))
	}
}

func TestRunNonInteractive(t *testing.T) {
	runner := newFakeRunner()

	client := newTestClient(t, notFoundHandler(), runner)
	client.stdinIsTerminal = func() bool { return false }

	if _, err := client.Run(context.Background(), Container{ID: "abc123"}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if runner.attachedInteractive {
		t.Error("Expected a non-interactive invocation when stdin is not a terminal")
	}

	expected := "start --attach abc123"
	if strings.Join(runner.attachedArgs, " ") != expected {
		t.Errorf("Expected args '%s', got '%s'", expected, strings.Join(runner.attachedArgs, " "))
	}
}

func TestCreateNewBridgeNetwork(t *testing.T) {
	var createdName string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			createdName, _ = body["Name"].(string)
		}

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"Id": "net123"}`)
	}), newFakeRunner())

	network, err := client.CreateNewBridgeNetwork(context.Background())
	if err != nil {
		t.Fatalf("CreateNewBridgeNetwork() failed: %v", err)
	}

	if network.ID != "net123" {
		t.Errorf("Expected network ID 'net123', got '%s'", network.ID)
	}

	if createdName == "" {
		t.Error("Expected a generated network name")
	}
}

func TestVersionInfoFailureIsAnErrorValue(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}), newFakeRunner())

	_, err := client.VersionInfo(context.Background())
	if err == nil {
		t.Fatal("Expected an error when the version probe fails")
	}
}

func TestAvailable(t *testing.T) {
	t.Run("daemon reachable", func(t *testing.T) {
		runner := newFakeRunner()
		runner.results["docker version"] = process.Result{ExitCode: 0, Output: "Docker version 20.10.7"}

		client := newTestClient(t, notFoundHandler(), runner)

		if !client.Available(context.Background()) {
			t.Error("Expected Docker to be reported available")
		}
	})

	t.Run("non-zero exit code", func(t *testing.T) {
		runner := newFakeRunner()
		runner.results["docker version"] = process.Result{ExitCode: 1, Output: "Cannot connect to the Docker daemon"}

		client := newTestClient(t, notFoundHandler(), runner)

		if client.Available(context.Background()) {
			t.Error("Expected Docker to be reported unavailable")
		}
	})

	t.Run("executable missing", func(t *testing.T) {
		runner := newFakeRunner()
		runner.errs["docker version"] = errors.New(`exec: "docker": executable file not found in $PATH`)

		client := newTestClient(t, notFoundHandler(), runner)

		if client.Available(context.Background()) {
			t.Error("Expected a missing executable to collapse to false")
		}
	})
}
