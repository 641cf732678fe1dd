// Package loader fetches the installable server artifact for a given
// type and version.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"mctool/internal/domain"
)

type ServerLoader interface {
	// Install downloads the server jar for version into destDir.
	Install(version string, destDir string, progressChan chan<- domain.ProgressEvent) error
	// GetSupportedVersions lists installable versions, newest first.
	GetSupportedVersions() ([]string, error)
}

func GetLoader(serverType domain.ServerType) (ServerLoader, error) {
	switch serverType {
	case domain.TypeVanilla:
		return NewVanillaLoader(), nil
	case domain.TypePaper:
		return NewPaperLoader(), nil
	default:
		return nil, fmt.Errorf("server type '%s' not supported", serverType)
	}
}

// AcceptEULA writes the eula acknowledgement the server requires on first
// boot.
func AcceptEULA(destDir string) error {
	content := "# Auto-accepted by mctool\neula=true\n"
	return os.WriteFile(filepath.Join(destDir, "eula.txt"), []byte(content), 0644)
}
