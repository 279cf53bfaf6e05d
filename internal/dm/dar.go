// Package dm builds Data Access Requests and drives the external
// Download Manager over its loopback HTTP interface.
package dm

import (
	"encoding/json"
	"fmt"
)

// Product pairs one download target directory (relative to the DM's
// download root) with the URL to fetch into it.
type Product struct {
	DownloadDirectory string `json:"downloadDirectory"`
	ProductAccessURL  string `json:"productAccessUrl"`
}

// DAR is the Data Access Request document the DM pulls back from the
// engine once a submission is acknowledged.
type DAR struct {
	ProductList []Product `json:"productList"`
}

// BuildDAR assembles a DAR preserving the submission order of the
// products. Product directories are numbered in URL order by the
// caller, so order is part of the contract.
func BuildDAR(products []Product) *DAR {
	return &DAR{ProductList: products}
}

// Marshal renders the DAR document served back to the DM.
func (d *DAR) Marshal() ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal DAR: %w", err)
	}
	return body, nil
}
