package eowcs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/antchfx/xmlquery"

	"github.com/eo-tools/eoingest/internal/geom"
)

// URL fragments of the WCS 2.0 KVP binding.
const (
	serviceWCS      = "service=wcs"
	wcsGetCaps      = "request=GetCapabilities"
	eowcsDescribeCS = "request=DescribeEOCoverageSet"
	wcsGetCoverage  = "request=GetCoverage"

	// WCSImageFormat selects the delivery format appended to every
	// GetCoverage request.
	WCSImageFormat = "format=image/tiff&mediatype=multipart/mixed"

	// EPSG4326URI is the CRS identifier used in GetCoverage subsets.
	EPSG4326URI = "http://www.opengis.net/def/crs/EPSG/0/4326"
)

// Client fetches and parses EO-WCS documents from a product facility.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, logger: logger}
}

// GetCapabilities fetches and parses the capabilities document of the
// product facility at endpoint.
func (c *Client) GetCapabilities(ctx context.Context, endpoint string) (*xmlquery.Node, error) {
	url := endpoint + "?" + serviceWCS + "&" + wcsGetCaps
	caps, err := c.fetchXML(ctx, url, capabilitiesTag)
	if err != nil {
		return nil, fmt.Errorf("cannot get capabilities: %w", err)
	}
	return caps, nil
}

// FetchCoverageSet fetches and parses a DescribeEOCoverageSet response
// from a URL built with DescribeCoverageSetURL.
func (c *Client) FetchCoverageSet(ctx context.Context, url string) (*xmlquery.Node, error) {
	return c.fetchXML(ctx, url, coverageSetTag)
}

func (c *Client) fetchXML(ctx context.Context, url, expectedRoot string) (*xmlquery.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error accessing data source with url '%s': %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error accessing data source with url '%s': status %d",
			url, resp.StatusCode)
	}
	return ParseDoc(resp.Body, expectedRoot, url)
}

// DescribeCoverageSetURL builds the per-EOID DescribeEOCoverageSet
// request, bounded by the AOI and TOI with containment=overlaps. The
// date strings are embedded verbatim.
func DescribeCoverageSetURL(endpoint, version, eoid string, aoi geom.Bbox, fromDate, toDate string) string {
	return endpoint +
		"?" + serviceWCS +
		"&version=" + version +
		"&" + eowcsDescribeCS +
		`&subset=phenomenonTime("` + fromDate + `","` + toDate + `")` +
		"&containment=overlaps" +
		"&subset=Lat(" + fnum(aoi.LL[1]) + "," + fnum(aoi.UR[1]) + ")" +
		"&subset=Long(" + fnum(aoi.LL[0]) + "," + fnum(aoi.UR[0]) + ")" +
		"&EOId=" + eoid
}

// GetCoverageURL builds the GetCoverage request for one coverage,
// subset to the AOI in EPSG:4326 and requesting a multipart TIFF.
func GetCoverageURL(endpoint, version, coverageID string, aoi geom.Bbox) string {
	return endpoint +
		"?" + serviceWCS +
		"&version=" + version +
		"&" + wcsGetCoverage +
		"&CoverageId=" + coverageID +
		"&subset=Lat," + EPSG4326URI + "(" + fnum(aoi.LL[1]) + "," + fnum(aoi.UR[1]) + ")" +
		"&subset=Long," + EPSG4326URI + "(" + fnum(aoi.LL[0]) + "," + fnum(aoi.UR[0]) + ")" +
		"&" + WCSImageFormat
}

func fnum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
