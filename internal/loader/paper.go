package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mctool/internal/domain"
)

const PaperAPIURL = "https://api.papermc.io/v2/projects/paper/"

type PaperVersionsResponse struct {
	Versions []string `json:"versions"`
}

type PaperBuildsResponse struct {
	Builds []int `json:"builds"`
}

type PaperLoader struct{}

func NewPaperLoader() *PaperLoader {
	return &PaperLoader{}
}

func (l *PaperLoader) GetSupportedVersions() ([]string, error) {
	return l.getVersions()
}

func (l *PaperLoader) Install(versionID string, destDir string, progressChan chan<- domain.ProgressEvent) error {
	if progressChan != nil {
		progressChan <- domain.ProgressEvent{Message: fmt.Sprintf("Searching for version %s...", versionID)}
	}

	versions, err := l.getVersions()
	if err != nil {
		return fmt.Errorf("error getting Paper versions: %w", err)
	}

	versionExists := false
	for _, v := range versions {
		if v == versionID {
			versionExists = true
			break
		}
	}
	if !versionExists {
		return fmt.Errorf("version %s not found in Paper", versionID)
	}

	if progressChan != nil {
		progressChan <- domain.ProgressEvent{Message: "Getting latest build..."}
	}
	latestBuild, err := l.getLatestBuild(versionID)
	if err != nil {
		return fmt.Errorf("error getting latest build: %w", err)
	}

	downloadURL := fmt.Sprintf("%sversions/%s/builds/%d/downloads/paper-%s-%d.jar",
		PaperAPIURL, versionID, latestBuild, versionID, latestBuild)

	finalPath := filepath.Join(destDir, "server.jar")
	if progressChan != nil {
		progressChan <- domain.ProgressEvent{Message: fmt.Sprintf("Downloading Paper %s build %d...", versionID, latestBuild)}
	}

	return l.downloadFile(downloadURL, finalPath, progressChan)
}

func (l *PaperLoader) getVersions() ([]string, error) {
	resp, err := http.Get(PaperAPIURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API responded with status %d", resp.StatusCode)
	}

	var response PaperVersionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	var filteredVersions []string
	for _, v := range response.Versions {
		if !strings.Contains(v, "-") {
			filteredVersions = append(filteredVersions, v)
		}
	}

	sortVersionsDesc(filteredVersions)
	return filteredVersions, nil
}

func (l *PaperLoader) getLatestBuild(version string) (int, error) {
	url := fmt.Sprintf("%sversions/%s", PaperAPIURL, version)
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API responded with status %d", resp.StatusCode)
	}

	var response PaperBuildsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, err
	}

	if len(response.Builds) == 0 {
		return 0, fmt.Errorf("no builds found for version %s", version)
	}

	return response.Builds[len(response.Builds)-1], nil
}

func (l *PaperLoader) downloadFile(url string, dest string, progressChan chan<- domain.ProgressEvent) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading file: status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	progressReader := &ProgressReader{
		Reader:       resp.Body,
		Total:        resp.ContentLength,
		ProgressChan: progressChan,
		Message:      "Downloading Paper server.jar",
	}

	_, err = io.Copy(out, progressReader)
	return err
}

// sortVersionsDesc orders semantic-ish version strings newest first.
// Numeric segments compare numerically, anything else lexically.
func sortVersionsDesc(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
}

func compareVersions(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	for k := 0; k < len(partsA) || k < len(partsB); k++ {
		var pa, pb string
		if k < len(partsA) {
			pa = partsA[k]
		}
		if k < len(partsB) {
			pb = partsB[k]
		}

		na, errA := strconv.Atoi(pa)
		nb, errB := strconv.Atoi(pb)
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		default:
			if pa != pb {
				if pa < pb {
					return -1
				}
				return 1
			}
		}
	}
	return 0
}
