package dm

import "fmt"

// Product download states reported by the DM.
const (
	ProgressCompleted = "COMPLETED"
	ProgressInError   = "IN_ERROR"
)

// ProductProgress is the per-product download state. The DM omits
// progressPercentage on some terminal entries; a nil pointer is read
// as 100 for completed products.
type ProductProgress struct {
	Status             string   `json:"status"`
	ProgressPercentage *float64 `json:"progressPercentage,omitempty"`
	DownloadedSize     int64    `json:"downloadedSize,omitempty"`
	Message            string   `json:"message,omitempty"`
}

// ProductStatus is one product inside a DAR status report.
type ProductStatus struct {
	UUID             string           `json:"uuid"`
	ProductAccessURL string           `json:"productAccessUrl"`
	ProductProgress  *ProductProgress `json:"productProgress,omitempty"`
}

// DARStatus is one entry of the DM's dataAccessRequests listing.
type DARStatus struct {
	UUID        string          `json:"uuid"`
	DarURL      string          `json:"darURL"`
	ProductList []ProductStatus `json:"productList"`
}

// DARList fetches the status of every DAR the DM knows about.
func (c *Controller) DARList() ([]DARStatus, error) {
	resp, err := c.http.Get(c.dmURL + "/" + dmDARStatusCmd)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to get DAR status from DM: %v", ErrDM, err)
	}
	defer resp.Body.Close()

	var listing struct {
		DataAccessRequests *[]DARStatus `json:"dataAccessRequests"`
	}
	if err := decodeJSON(resp.Body, &listing); err != nil {
		return nil, fmt.Errorf("%w: bad DAR status from DM: %v", ErrDM, err)
	}
	if listing.DataAccessRequests == nil {
		return nil, fmt.Errorf("%w: bad DAR status from DM; no 'dataAccessRequests' found", ErrDM)
	}
	return *listing.DataAccessRequests, nil
}

// DARStatusByURL locates the status entry submitted under darURL. A
// nil result means the DM does not (yet) list the DAR.
func (c *Controller) DARStatusByURL(darURL string) (*DARStatus, error) {
	list, err := c.DARList()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].DarURL == darURL {
			return &list[i], nil
		}
	}
	return nil, nil
}

// CancelProducts cancels every product of a DAR that has not already
// completed. The DM has no whole-DAR cancel, so products are cancelled
// one by one; individual cancel failures are logged and skipped.
func (c *Controller) CancelProducts(products []ProductStatus) {
	c.logger.Info("stopping products download")
	for _, p := range products {
		if p.ProductProgress != nil && p.ProductProgress.Status == ProgressCompleted {
			continue
		}
		url := c.dmURL + "/" + fmt.Sprintf(dmProductCancel, p.UUID)
		resp, err := c.http.Get(url)
		if err != nil {
			c.logger.Warn("error from DM while cancelling download", "error", err)
			continue
		}
		resp.Body.Close()
	}
}

// CancelDAR cancels all unfinished product downloads of the DAR with
// the given uuid.
func (c *Controller) CancelDAR(darUUID string) error {
	c.logger.Info("stopping active download", "darUuid", darUUID)
	list, err := c.DARList()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].UUID == darUUID {
			c.CancelProducts(list[i].ProductList)
			return nil
		}
	}
	return nil
}
