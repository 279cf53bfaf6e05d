package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/eo-tools/eoingest/internal/dm"
)

// stopDownload cancels the unfinished product downloads of the DAR
// after claiming it by clearing active_dar. When the clear fails the
// DAR was already taken over by another canceller and there is nothing
// left to do.
func (r *Runner) stopDownload(scenarioID int64, request *dm.DARStatus) {
	if request == nil {
		r.logger.Warn("stop download: no dar request to process")
		return
	}
	if !r.store.SetActiveDAR(scenarioID, "") {
		r.logger.Warn("stop download: dar had been cleared")
		return
	}
	if len(request.ProductList) == 0 {
		r.logger.Warn("stop download: no productList in request")
		return
	}
	r.dmc.CancelProducts(request.ProductList)
}

// fetchDARStatus locates the DAR status entry, tolerating a brief
// absence right after submission: one status-interval wait plus two
// 1-second retries before giving up.
func (r *Runner) fetchDARStatus(scenarioID int64, darURL string) (*dm.DARStatus, error) {
	request, err := r.dmc.DARStatusByURL(darURL)
	if err != nil {
		return nil, err
	}
	if request != nil {
		return request, nil
	}

	for _, wait := range []time.Duration{r.statusInterval, time.Second, time.Second} {
		time.Sleep(wait)
		request, err = r.dmc.DARStatusByURL(darURL)
		if err != nil {
			return nil, err
		}
		if request != nil {
			return request, nil
		}
	}
	r.store.SetActiveDAR(scenarioID, "")
	return nil, fmt.Errorf("%w: bad DAR status from DM; no 'dataAccessRequests' found", dm.ErrDM)
}

// waitForDownload blocks until the DM reports every product of the DAR
// terminal, publishing progress to the scenario status row between
// polls. The returned count is the number of products that ended
// IN_ERROR.
func (r *Runner) waitForDownload(scenarioID int64, darURL string) (int, error) {
	defer r.store.SetActiveDAR(scenarioID, "")

	r.store.SetScenarioStatus(scenarioID, false, "Downloading", 1)

	request, err := r.fetchDARStatus(scenarioID, darURL)
	if err != nil {
		return 0, err
	}
	if r.store.IsStopping(scenarioID) {
		r.stopDownload(scenarioID, request)
		return 0, ErrStopRequested
	}

	products := request.ProductList
	nProducts := len(products)
	totalPercent := nProducts * 100

	for {
		allDone := true
		nDone := 0
		nErrors := 0
		partPercent := 0.0
		var totalSize int64

		for _, p := range products {
			progress := p.ProductProgress
			if progress == nil {
				continue
			}
			switch progress.Status {
			case dm.ProgressInError:
				nErrors++
				nDone++
				r.logger.Info("DM reports IN_ERROR",
					"uuid", orUnknown(p.UUID),
					"message", orUnknown(progress.Message),
					"url", orUnknown(p.ProductAccessURL))
			case dm.ProgressCompleted:
				nDone++
			default:
				allDone = false
			}
			if progress.ProgressPercentage == nil {
				partPercent += 100
			} else {
				partPercent += *progress.ProgressPercentage
			}
			totalSize += progress.DownloadedSize
		}

		percent := 0.0
		if totalPercent > 0 {
			percent = partPercent / float64(totalPercent) * 100
		}
		if percent < 1 {
			percent = 1
		}

		if allDone {
			if nErrors > 0 {
				r.store.SetScenarioStatus(scenarioID, false,
					strconv.Itoa(nErrors)+" errors during Dl.", percent)
				r.logger.Info("completed download with errors", "nErrors", nErrors)
			} else {
				r.store.SetScenarioStatus(scenarioID, false,
					fmt.Sprintf("Finished Dl. (%d)", nProducts), percent)
			}
			r.logger.Info("DM reports download complete",
				"size", formatSize(totalSize), "nProducts", nProducts)
			return nErrors, nil
		}

		if r.store.IsStopping(scenarioID) {
			r.stopDownload(scenarioID, request)
			return nErrors, ErrStopRequested
		}
		r.store.SetScenarioStatus(scenarioID, false,
			fmt.Sprintf("Downloading (%d/%d)", nDone, nProducts), percent)

		time.Sleep(r.statusInterval)
		request, err = r.fetchDARStatus(scenarioID, darURL)
		if err != nil {
			return nErrors, err
		}
		if r.store.IsStopping(scenarioID) {
			r.stopDownload(scenarioID, request)
			return nErrors, ErrStopRequested
		}
		products = request.ProductList
	}
}

// formatSize reports kilobytes for anything at or above 100 kB.
func formatSize(bytes int64) string {
	if bytes < 102400 {
		return fmt.Sprintf("%d bytes", bytes)
	}
	return fmt.Sprintf("%d kb", bytes/1024)
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
