//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed with config.toml.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "--config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Checks the configuration and the compiled shaders without opening a window.
func (Run) Check() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("run", ".", "check", "--config", "config.toml"), withStream())
	return err
}

// Runs the unit tests. Packages that need a GPU are exercised through fakes.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
