// ABOUTME: Standard filesystem paths for pi-chat configuration
// ABOUTME: Resolves ~/.pi-chat/ for global and .pi-chat/ for project-local settings

package config

import (
	"os"
	"path/filepath"
)

const (
	globalDirName  = ".pi-chat"
	projectDirName = ".pi-chat"
	configFileName = "config.yaml"
)

// GlobalDir returns the user-global config directory (~/.pi-chat/).
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// ProjectDir returns the project-local config directory (.pi-chat/ in root).
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, projectDirName)
}

// GlobalConfigFile returns the path to the global config file.
func GlobalConfigFile() string {
	return filepath.Join(GlobalDir(), configFileName)
}

// ProjectConfigFile returns the path to the project-local config file.
func ProjectConfigFile(projectRoot string) string {
	return filepath.Join(ProjectDir(projectRoot), configFileName)
}
