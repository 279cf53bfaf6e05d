package eowcs

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eo-tools/eoingest/internal/geom"
)

const capabilitiesXML = `<?xml version="1.0" encoding="UTF-8"?>
<wcs:Capabilities xmlns:wcs="http://www.opengis.net/wcs/2.0"
    xmlns:ows="http://www.opengis.net/ows/2.0"
    xmlns:wcseo="http://www.opengis.net/wcseo/1.0"
    xmlns:gml="http://www.opengis.net/gml/3.2" version="2.0.1">
  <ows:ServiceIdentification>
    <ows:ServiceTypeVersion>2.0.1</ows:ServiceTypeVersion>
  </ows:ServiceIdentification>
  <wcs:Contents>
    <wcs:Extension>
      <wcseo:DatasetSeriesSummary>
        <ows:WGS84BoundingBox>
          <ows:LowerCorner>0.8 44.14</ows:LowerCorner>
          <ows:UpperCorner>0.9 44.15</ows:UpperCorner>
        </ows:WGS84BoundingBox>
        <wcseo:DatasetSeriesId>series_A</wcseo:DatasetSeriesId>
        <gml:TimePeriod gml:id="tp_series_a">
          <gml:beginPosition>2013-06-01T00:00:00</gml:beginPosition>
          <gml:endPosition>2013-07-01T00:00:00</gml:endPosition>
        </gml:TimePeriod>
      </wcseo:DatasetSeriesSummary>
      <wcseo:DatasetSeriesSummary>
        <ows:WGS84BoundingBox>
          <ows:LowerCorner>8 50</ows:LowerCorner>
          <ows:UpperCorner>12.3 55</ows:UpperCorner>
        </ows:WGS84BoundingBox>
        <wcseo:DatasetSeriesId>series_B</wcseo:DatasetSeriesId>
        <gml:TimePeriod gml:id="tp_series_b">
          <gml:beginPosition>2013-01-01T00:00:00</gml:beginPosition>
          <gml:endPosition>2014-01-01T00:00:00</gml:endPosition>
        </gml:TimePeriod>
      </wcseo:DatasetSeriesSummary>
    </wcs:Extension>
  </wcs:Contents>
</wcs:Capabilities>`

const coverageSetXML = `<?xml version="1.0" encoding="UTF-8"?>
<wcseo:EOCoverageSetDescription numberReturned="2" numberMatched="2"
    xmlns:wcs="http://www.opengis.net/wcs/2.0"
    xmlns:wcseo="http://www.opengis.net/wcseo/1.0"
    xmlns:gml="http://www.opengis.net/gml/3.2"
    xmlns:gmlcov="http://www.opengis.net/gmlcov/1.0"
    xmlns:eop="http://www.opengis.net/eop/2.0"
    xmlns:om="http://www.opengis.net/om/2.0"
    xmlns:opt="http://www.opengis.net/opt/2.0">
  <wcs:CoverageDescriptions>
    <wcs:CoverageDescription gml:id="cov_a">
      <gml:boundedBy>
        <gml:Envelope axisLabels="lat long" srsDimension="2"
            srsName="http://www.opengis.net/def/crs/EPSG/0/4326" uomLabels="deg deg">
          <gml:lowerCorner>44.14 0.8</gml:lowerCorner>
          <gml:upperCorner>44.15 0.9</gml:upperCorner>
        </gml:Envelope>
      </gml:boundedBy>
      <wcs:CoverageId>cov_a_id</wcs:CoverageId>
      <gmlcov:metadata>
        <gmlcov:Extension>
          <wcseo:EOMetadata>
            <eop:EarthObservation gml:id="eop_a">
              <om:phenomenonTime>
                <gml:TimePeriod gml:id="tp_a">
                  <gml:beginPosition>2011-01-19T00:00:00</gml:beginPosition>
                  <gml:endPosition>2011-01-19T00:00:00</gml:endPosition>
                </gml:TimePeriod>
              </om:phenomenonTime>
              <om:procedure>
                <eop:EarthObservationEquipment gml:id="eq_a">
                  <eop:sensor>
                    <eop:Sensor>
                      <eop:sensorType>OPTICAL</eop:sensorType>
                    </eop:Sensor>
                  </eop:sensor>
                  <eop:acquisitionParameters>
                    <eop:Acquisition>
                      <eop:incidenceAngle uom="deg">+7.23391641</eop:incidenceAngle>
                    </eop:Acquisition>
                  </eop:acquisitionParameters>
                </eop:EarthObservationEquipment>
              </om:procedure>
              <om:result>
                <opt:EarthObservationResult gml:id="res_a">
                  <opt:cloudCoverPercentage uom="%">13.25</opt:cloudCoverPercentage>
                </opt:EarthObservationResult>
              </om:result>
              <om:featureOfInterest>
                <eop:Footprint gml:id="fp_a">
                  <eop:multiExtentOf>
                    <gml:MultiSurface gml:id="ms_a">
                      <gml:surfaceMember>
                        <gml:Polygon gml:id="poly_a">
                          <gml:exterior>
                            <gml:LinearRing>
                              <gml:posList>44.14 0.8 44.14 0.9 44.15 0.9 44.15 0.8 44.14 0.8</gml:posList>
                            </gml:LinearRing>
                          </gml:exterior>
                        </gml:Polygon>
                      </gml:surfaceMember>
                    </gml:MultiSurface>
                  </eop:multiExtentOf>
                </eop:Footprint>
              </om:featureOfInterest>
              <eop:metaDataProperty>
                <eop:EarthObservationMetaData>
                  <eop:identifier>eoid_cov_a</eop:identifier>
                </eop:EarthObservationMetaData>
              </eop:metaDataProperty>
            </eop:EarthObservation>
          </wcseo:EOMetadata>
        </gmlcov:Extension>
      </gmlcov:metadata>
    </wcs:CoverageDescription>
    <wcs:CoverageDescription gml:id="cov_b"/>
  </wcs:CoverageDescriptions>
</wcseo:EOCoverageSetDescription>`

const exceptionXML = `<?xml version="1.0" encoding="UTF-8"?>
<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows/2.0" version="2.0.0">
  <ows:Exception exceptionCode="NoSuchCoverage"/>
</ows:ExceptionReport>`

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestParseDoc(t *testing.T) {
	root, err := ParseDoc(strings.NewReader(capabilitiesXML), "Capabilities", "test")
	require.NoError(t, err)
	assert.Equal(t, "Capabilities", root.Data)

	_, err = ParseDoc(strings.NewReader(capabilitiesXML), "EOCoverageSetDescription", "test")
	assert.Error(t, err, "wrong root must be rejected")

	_, err = ParseDoc(strings.NewReader(exceptionXML), "Capabilities", "test")
	assert.Error(t, err, "exception report must be rejected")

	_, err = ParseDoc(strings.NewReader("not xml at <<<"), "Capabilities", "test")
	assert.Error(t, err)
}

func TestExtractServiceTypeVersion(t *testing.T) {
	caps, err := ParseDoc(strings.NewReader(capabilitiesXML), "Capabilities", "test")
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", ExtractServiceTypeVersion(caps, testLogger()))

	bare, err := ParseDoc(strings.NewReader("<Capabilities/>"), "Capabilities", "test")
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceVersion, ExtractServiceTypeVersion(bare, testLogger()))
}

func TestDatasetSeriesSummaries(t *testing.T) {
	caps, err := ParseDoc(strings.NewReader(capabilitiesXML), "Capabilities", "test")
	require.NoError(t, err)

	summaries := DatasetSeriesSummaries(caps, testLogger())
	require.Len(t, summaries, 2)

	assert.Equal(t, "series_A", DatasetSeriesID(summaries[0], testLogger()))
	assert.Equal(t, "series_B", DatasetSeriesID(summaries[1], testLogger()))

	bb, ok := ExtractWGS84Bbox(summaries[0], testLogger())
	require.True(t, ok)
	assert.Equal(t, orb.Point{0.8, 44.14}, bb.LL)
	assert.Equal(t, orb.Point{0.9, 44.15}, bb.UR)

	tp, ok := ExtractTimePeriod(summaries[0])
	require.True(t, ok)
	june, err := geom.NewTimePeriod("2013-06-10T00:00:00", "2013-06-20T00:00:00")
	require.NoError(t, err)
	assert.True(t, tp.Overlaps(june))
}

func TestCoverageDescriptions(t *testing.T) {
	root, err := ParseDoc(strings.NewReader(coverageSetXML), "EOCoverageSetDescription", "test")
	require.NoError(t, err)

	returned, matched, ok := ResultCounts(root)
	require.True(t, ok)
	assert.Equal(t, "2", returned)
	assert.Equal(t, "2", matched)

	cds := CoverageDescriptions(root)
	require.Len(t, cds, 2)

	assert.Equal(t, "cov_a_id", ExtractCoverageID(cds[0]))
	assert.Equal(t, "cov_b", ExtractCoverageID(cds[1]), "falls back to gml:id attribute")
}

func TestExtractGMLBbox(t *testing.T) {
	root, err := ParseDoc(strings.NewReader(coverageSetXML), "EOCoverageSetDescription", "test")
	require.NoError(t, err)
	cds := CoverageDescriptions(root)

	bb, ok := ExtractGMLBbox(cds[0], testLogger())
	require.True(t, ok, "lat-long axis order must be swapped on ingest")
	assert.Equal(t, orb.Point{0.8, 44.14}, bb.LL)
	assert.Equal(t, orb.Point{0.9, 44.15}, bb.UR)

	_, ok = ExtractGMLBbox(cds[1], testLogger())
	assert.False(t, ok, "no envelope")
}

func TestExtractEOMetadata(t *testing.T) {
	root, err := ParseDoc(strings.NewReader(coverageSetXML), "EOCoverageSetDescription", "test")
	require.NoError(t, err)
	cd := CoverageDescriptions(root)[0]

	assert.Equal(t, "OPTICAL", ExtractText(cd, SensorTypePath))
	assert.Equal(t, "+7.23391641", ExtractText(cd, IncidenceAnglePath))
	assert.Equal(t, "13.25", ExtractText(cd, CloudCoverPath))
	assert.Equal(t, "eoid_cov_a", ExtractEOID(cd))
	assert.Equal(t, "", ExtractText(cd, "NoSuchElement"))

	tp, ok := ExtractOMTime(cd, testLogger())
	require.True(t, ok)
	instant, err := geom.NewTimePeriod("2011-01-19T00:00:00", "2011-01-19T00:00:00")
	require.NoError(t, err)
	assert.True(t, tp.Overlaps(instant))
}

func TestExtractFootprint(t *testing.T) {
	root, err := ParseDoc(strings.NewReader(coverageSetXML), "EOCoverageSetDescription", "test")
	require.NoError(t, err)
	cds := CoverageDescriptions(root)

	ring := ExtractFootprint(cds[0], testLogger())
	require.Len(t, ring, 5)
	// posList is (lat, long); the ring is (east, north)
	assert.Equal(t, orb.Point{0.8, 44.14}, ring[0])
	assert.Equal(t, orb.Point{0.9, 44.14}, ring[1])

	assert.Nil(t, ExtractFootprint(cds[1], testLogger()))
}

func TestSrsNameToEPSG(t *testing.T) {
	code, err := srsNameToEPSG("http://www.opengis.net/def/crs/EPSG/0/4326")
	require.NoError(t, err)
	assert.Equal(t, 4326, code)

	_, err = srsNameToEPSG("urn:ogc:def:crs:OGC:1.3:CRS84")
	assert.ErrorIs(t, err, geom.ErrNoEPSGCode)
}

func TestIsXAxisFirst(t *testing.T) {
	assert.False(t, isXAxisFirst("lat long", testLogger()))
	assert.True(t, isXAxisFirst("long lat", testLogger()))
	assert.True(t, isXAxisFirst("x y", testLogger()))
	assert.False(t, isXAxisFirst("y x", testLogger()))
	assert.False(t, isXAxisFirst("gibberish", testLogger()))
}
