// Package eowcs talks to an EO-WCS 2.0 product facility: it issues
// GetCapabilities and DescribeEOCoverageSet requests, parses the XML
// responses and builds GetCoverage URLs for qualifying coverages.
package eowcs

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/paulmach/orb"

	"github.com/eo-tools/eoingest/internal/geom"
)

// DefaultServiceVersion is assumed when the capabilities document does
// not carry a ServiceTypeVersion.
const DefaultServiceVersion = "2.0.1"

const (
	exceptionTag    = "ExceptionReport"
	capabilitiesTag = "Capabilities"
	coverageSetTag  = "EOCoverageSetDescription"
	epsgURIPrefix   = "http://www.opengis.net/def/crs/EPSG"
)

// ParseDoc parses an XML document and returns its root element. An OGC
// ExceptionReport at the root, or a root other than expectedRoot (when
// non-empty), is an error. Matching ignores namespace prefixes.
func ParseDoc(r io.Reader, expectedRoot, src string) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("cannot parse '%s': %w", src, err)
	}
	root := rootElement(doc)
	if root == nil {
		return nil, fmt.Errorf("no XML root element in '%s'", src)
	}
	if root.Data == exceptionTag {
		return nil, fmt.Errorf("'%s' contains an exception report", src)
	}
	if expectedRoot != "" && root.Data != expectedRoot {
		return nil, fmt.Errorf("'%s' does not contain expected root '%s', got '%s'",
			src, expectedRoot, root.Data)
	}
	return root, nil
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// ExtractServiceTypeVersion returns the WCS service version advertised
// by the capabilities document, or DefaultServiceVersion if absent.
func ExtractServiceTypeVersion(caps *xmlquery.Node, logger *slog.Logger) string {
	n := xmlquery.FindOne(caps, "ServiceIdentification/ServiceTypeVersion")
	if n == nil {
		logger.Warn("ServiceTypeVersion not found, assuming default",
			"default", DefaultServiceVersion)
		return DefaultServiceVersion
	}
	return strings.TrimSpace(n.InnerText())
}

// DatasetSeriesSummaries returns the dataset series advertised under
// Contents/Extension, in document order.
func DatasetSeriesSummaries(caps *xmlquery.Node, logger *slog.Logger) []*xmlquery.Node {
	ext := xmlquery.FindOne(caps, "Contents/Extension")
	if ext == nil {
		logger.Error("Contents/Extension not found in capabilities")
		return nil
	}
	return xmlquery.Find(ext, "DatasetSeriesSummary")
}

// DatasetSeriesID extracts the series identifier from a summary node.
func DatasetSeriesID(dss *xmlquery.Node, logger *slog.Logger) string {
	id := xmlquery.FindOne(dss, "DatasetSeriesId")
	if id == nil {
		logger.Error("'DatasetSeriesId' not found in DatasetSeriesSummary")
		return ""
	}
	return id.InnerText()
}

// ExtractWGS84Bbox reads the ows:WGS84BoundingBox of a dataset series
// summary. Corner coordinates are in (long, lat) order per OWS.
func ExtractWGS84Bbox(dss *xmlquery.Node, logger *slog.Logger) (geom.Bbox, bool) {
	box := xmlquery.FindOne(dss, "WGS84BoundingBox")
	if box == nil {
		logger.Error("'WGS84BoundingBox' not found in DatasetSeriesSummary")
		return geom.Bbox{}, false
	}
	lc := xmlquery.FindOne(box, "LowerCorner")
	uc := xmlquery.FindOne(box, "UpperCorner")
	if lc == nil || uc == nil {
		logger.Error("LowerCorner or UpperCorner not found in WGS84BoundingBox")
		return geom.Bbox{}, false
	}
	bb, err := geom.BboxFromStrings(lc.InnerText(), uc.InnerText(), true)
	if err != nil {
		logger.Error("cannot parse WGS84BoundingBox corners", "error", err)
		return geom.Bbox{}, false
	}
	return bb, true
}

// ExtractTimePeriod reads a gml:TimePeriod child of the given node.
func ExtractTimePeriod(n *xmlquery.Node) (geom.TimePeriod, bool) {
	tp := xmlquery.FindOne(n, "TimePeriod")
	if tp == nil {
		return geom.TimePeriod{}, false
	}
	begin := xmlquery.FindOne(tp, "beginPosition")
	end := xmlquery.FindOne(tp, "endPosition")
	if begin == nil || end == nil {
		return geom.TimePeriod{}, false
	}
	period, err := geom.NewTimePeriod(begin.InnerText(), end.InnerText())
	if err != nil {
		return geom.TimePeriod{}, false
	}
	return period, true
}

// ExtractOMTime reads the om:phenomenonTime period of a coverage
// description's EO metadata.
func ExtractOMTime(cd *xmlquery.Node, logger *slog.Logger) (geom.TimePeriod, bool) {
	pt := xmlquery.FindOne(cd, phenomenonTimePath)
	if pt == nil {
		logger.Error("failed to find 'phenomenonTime'")
		return geom.TimePeriod{}, false
	}
	return ExtractTimePeriod(pt)
}

// ExtractGMLBbox reads the gml:boundedBy envelope of a coverage
// description and converts it to WGS84, honouring the envelope's
// axisLabels order and srsName EPSG code.
func ExtractGMLBbox(cd *xmlquery.Node, logger *slog.Logger) (geom.Bbox, bool) {
	env := xmlquery.FindOne(cd, "boundedBy/Envelope")
	if env == nil {
		return geom.Bbox{}, false
	}

	axisLabels := attrByLocalName(env, "axisLabels")
	srsName := attrByLocalName(env, "srsName")
	if axisLabels == "" || srsName == "" {
		logger.Error("srsName or axisLabels not found in Envelope")
		return geom.Bbox{}, false
	}
	epsg, err := srsNameToEPSG(srsName)
	if err != nil {
		logger.Error("cannot determine EPSG code", "srsName", srsName, "error", err)
		return geom.Bbox{}, false
	}

	lc := xmlquery.FindOne(env, "lowerCorner")
	uc := xmlquery.FindOne(env, "upperCorner")
	if lc == nil || uc == nil {
		logger.Error("lowerCorner or upperCorner not found in Envelope")
		return geom.Bbox{}, false
	}

	bb, err := geom.BboxFromStrings(lc.InnerText(), uc.InnerText(),
		isXAxisFirst(axisLabels, logger))
	if err != nil {
		logger.Error("cannot parse Envelope corners", "error", err)
		return geom.Bbox{}, false
	}
	wgs, err := bb.ToWGS84(epsg)
	if err != nil {
		logger.Error("cannot convert Envelope to WGS84", "epsg", epsg, "error", err)
		return geom.Bbox{}, false
	}
	return wgs, true
}

func srsNameToEPSG(srsName string) (int, error) {
	if !strings.HasPrefix(srsName, epsgURIPrefix) {
		return 0, fmt.Errorf("unknown SRS '%s': %w", srsName, geom.ErrNoEPSGCode)
	}
	parts := strings.Split(srsName, "/")
	code, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("bad EPSG code in '%s': %w", srsName, err)
	}
	return code, nil
}

func isXAxisFirst(axisLabels string, logger *slog.Logger) bool {
	labels := strings.Fields(strings.ToLower(axisLabels))
	if len(labels) != 2 {
		logger.Error("cannot parse axisLabels", "axisLabels", axisLabels)
		return false
	}
	switch labels[0] {
	case "lat", "y":
		return false
	case "long", "x":
		return true
	}
	logger.Error("cannot parse axisLabels", "axisLabels", axisLabels)
	return false
}

// ExtractCoverageID returns the coverage identifier, taken from the
// CoverageId element or falling back to the gml:id attribute.
func ExtractCoverageID(cd *xmlquery.Node) string {
	if n := xmlquery.FindOne(cd, "CoverageId"); n != nil {
		return n.InnerText()
	}
	return attrByLocalName(cd, "id")
}

// attrByLocalName looks up an attribute by local name, ignoring any
// namespace prefix such as gml: on gml:id.
func attrByLocalName(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// CoverageDescriptions lists the coverage descriptions of a
// DescribeEOCoverageSet response, in document order.
func CoverageDescriptions(root *xmlquery.Node) []*xmlquery.Node {
	return xmlquery.Find(root, "CoverageDescriptions/CoverageDescription")
}

// ExtractText returns the text of the first node at path below n, or
// the empty string if the path does not resolve.
func ExtractText(n *xmlquery.Node, path string) string {
	leaf := xmlquery.FindOne(n, path)
	if leaf == nil {
		return ""
	}
	return leaf.InnerText()
}

// ExtractEOID returns the eop:identifier of a coverage description.
func ExtractEOID(cd *xmlquery.Node) string {
	return ExtractText(cd, eoIdentifierPath)
}

// ExtractFootprint reads the acquisition footprint polygon of a
// coverage description. The feed lists vertices in (lat, long) order;
// the returned ring is in (east, north) order.
func ExtractFootprint(cd *xmlquery.Node, logger *slog.Logger) orb.Ring {
	posList := xmlquery.FindOne(cd, FootprintPosListPath)
	if posList == nil {
		return nil
	}
	fields := strings.Fields(posList.InnerText())
	if len(fields) == 0 || len(fields)%2 != 0 {
		logger.Warn("cannot parse footprint posList", "nValues", len(fields))
		return nil
	}
	ring := make(orb.Ring, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		lat, err1 := strconv.ParseFloat(fields[i], 64)
		long, err2 := strconv.ParseFloat(fields[i+1], 64)
		if err1 != nil || err2 != nil {
			logger.Warn("bad coordinate in footprint posList",
				"lat", fields[i], "long", fields[i+1])
			return nil
		}
		ring = append(ring, orb.Point{long, lat})
	}
	return ring
}

// ResultCounts reports the numberReturned and numberMatched attributes
// of a DescribeEOCoverageSet response root, when present.
func ResultCounts(root *xmlquery.Node) (returned, matched string, ok bool) {
	returned = attrByLocalName(root, "numberReturned")
	matched = attrByLocalName(root, "numberMatched")
	return returned, matched, returned != "" || matched != ""
}
