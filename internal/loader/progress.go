package loader

import (
	"fmt"
	"io"

	"mctool/internal/domain"
)

// ProgressReader reports download progress at whole-percent granularity so
// the channel carries at most 100 events per download.
type ProgressReader struct {
	Reader       io.Reader
	Total        int64
	ProgressChan chan<- domain.ProgressEvent
	Message      string

	current     int64
	lastPercent int
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	pr.current += int64(n)

	if pr.ProgressChan != nil && pr.Total > 0 {
		percentage := float64(pr.current) / float64(pr.Total) * 100
		if percent := int(percentage); percent > pr.lastPercent {
			pr.lastPercent = percent
			pr.ProgressChan <- domain.ProgressEvent{
				Message:      fmt.Sprintf("%s %d%%", pr.Message, percent),
				Progress:     percentage,
				CurrentBytes: pr.current,
				TotalBytes:   pr.Total,
			}
		}
	}
	return n, err
}
