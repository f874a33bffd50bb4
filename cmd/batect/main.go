package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ekamara/batect/pkg/config"
	"github.com/ekamara/batect/pkg/docker"
	"github.com/ekamara/batect/pkg/process"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "batect",
		Short: "Build and testing environments as code",
		Long: `batect drives the Docker daemon to build images and run containerised
task environments. These commands expose the container lifecycle operations
directly.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(networkCmd)

	networkCmd.AddCommand(networkCreateCmd)
	networkCmd.AddCommand(networkRemoveCmd)

	buildCmd.Flags().StringToStringVar(&buildArgs, "build-arg", nil, "build arguments passed to the image build")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newDockerClient wires config, logging and the process runner together the
// same way for every command.
func newDockerClient() (*docker.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	return docker.NewClient(cfg.Docker.Host, cfg.Docker.APIVersion, process.NewExecRunner(), logger)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the Docker daemon's version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDockerClient()
		if err != nil {
			return err
		}

		info, err := client.VersionInfo(context.Background())
		if err != nil {
			// Version probing must not abort: report what we know.
			fmt.Printf("Docker version: unknown (%v)\n", err)
			return nil
		}

		fmt.Printf("Docker version: %s\n", info)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether Docker is available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDockerClient()
		if err != nil {
			return err
		}

		if !client.Available(context.Background()) {
			return fmt.Errorf("Docker is not available")
		}

		fmt.Println("Docker is available.")
		return nil
	},
}

var buildArgs map[string]string

var buildCmd = &cobra.Command{
	Use:   "build <directory>",
	Short: "Build an image from a build context directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDockerClient()
		if err != nil {
			return err
		}

		image, err := client.Build(context.Background(), args[0], buildArgs, func(progress docker.BuildProgress) {
			fmt.Printf("Step %d of %d: %s\n", progress.Step, progress.TotalSteps, progress.Name)
		})
		if err != nil {
			return err
		}

		fmt.Printf("Built image %s.\n", image.ID)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <image>",
	Short: "Pull an image if it is not already available locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDockerClient()
		if err != nil {
			return err
		}

		image, err := client.Pull(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Image %s is available.\n", image.ID)
		return nil
	},
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage task networks",
}

var networkCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new bridge network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDockerClient()
		if err != nil {
			return err
		}

		network, err := client.CreateNewBridgeNetwork(context.Background())
		if err != nil {
			return err
		}

		fmt.Println(network.ID)
		return nil
	},
}

var networkRemoveCmd = &cobra.Command{
	Use:   "rm <network>",
	Short: "Delete a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDockerClient()
		if err != nil {
			return err
		}

		return client.DeleteNetwork(context.Background(), docker.Network{ID: args[0]})
	},
}
