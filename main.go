/*
Runs the testbed game on top of the engine package to exercise the render
graph end to end.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/testbed"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "framegraph",
	Short: "Render graph testbed",
	Long: `Opens a window and renders the testbed scene through the render graph:
a depth prepass, a compute pass reducing depth per screen tile and a
fullscreen pass presenting the result.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configPath)
		if err != nil {
			return err
		}
		return run(config)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and the compiled shaders",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := testbed.CheckAssets(config); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration %q is valid\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML configuration file")
	rootCmd.AddCommand(checkCmd)
}

func run(config *core.EngineConfig) error {
	if err := testbed.CheckAssets(config); err != nil {
		return err
	}

	e, err := engine.New(testbed.NewTestGame(config).Game)
	if err != nil {
		return err
	}

	if err := e.Initialize(); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		if _, ok := <-sigCh; ok {
			// The loop owns the GPU objects, let it stop and clean up.
			e.Quit()
		}
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	return runErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
