package ingest

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eo-tools/eoingest/internal/eowcs"
	"github.com/eo-tools/eoingest/internal/geom"
	"github.com/eo-tools/eoingest/internal/store"
)

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
                      <eop:incidenceAngle uom="deg">7.2</eop:incidenceAngle>
                    </eop:Acquisition>
                  </eop:acquisitionParameters>
                </eop:EarthObservationEquipment>
              </om:procedure>
              <om:result>
                <opt:EarthObservationResult gml:id="res_a">
                  <opt:cloudCoverPercentage uom="%">13.25</opt:cloudCoverPercentage>
                </opt:EarthObservationResult>
              </om:result>
            </eop:EarthObservation>
          </wcseo:EOMetadata>
        </gmlcov:Extension>
      </gmlcov:metadata>
    </wcs:CoverageDescription>
    <wcs:CoverageDescription gml:id="cov_b"/>
  </wcs:CoverageDescriptions>
</wcseo:EOCoverageSetDescription>`

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scenarios.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func baseScenario() *store.Scenario {
	return &store.Scenario{
		NcnID:    "scid0",
		Dsrc:     "http://pf.example.com/wcs",
		AoiBbox:  geom.NewBbox(orb.Point{0, 44}, orb.Point{1, 45}),
		FromDate: "2011-01-01T00:00:00",
		ToDate:   "2011-02-01T00:00:00",
	}
}

func descriptions(t *testing.T) []*xmlquery.Node {
	t.Helper()
	root, err := eowcs.ParseDoc(strings.NewReader(coverageSetXML),
		"EOCoverageSetDescription", "test")
	require.NoError(t, err)
	cds := eowcs.CoverageDescriptions(root)
	require.Len(t, cds, 2)
	return cds
}

func newTestFilter(t *testing.T, s *store.Store, sc *store.Scenario) *filter {
	t.Helper()
	toi, err := geom.NewTimePeriod(sc.FromDate, sc.ToDate)
	require.NoError(t, err)
	return newFilter(s, sc, toi, nil, slog.Default())
}

func TestAccept_AllPredicatesPass(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)

	f := newTestFilter(t, s, sc)
	id, ok, err := f.accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cov_a_id", id)
}

func TestAccept_NoBboxDrops(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)

	f := newTestFilter(t, s, sc)
	_, ok, err := f.accept(descriptions(t)[1], "test")
	require.NoError(t, err)
	assert.False(t, ok, "no boundedBy envelope")
}

func TestAccept_DisjointBboxDrops(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	sc.AoiBbox = geom.NewBbox(orb.Point{10, 50}, orb.Point{11, 51})
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)

	f := newTestFilter(t, s, sc)
	_, ok, err := f.accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccept_TimePeriodDrops(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	sc.FromDate = "2012-01-01T00:00:00"
	sc.ToDate = "2012-02-01T00:00:00"
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)

	f := newTestFilter(t, s, sc)
	_, ok, err := f.accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccept_ArchivedIsNeverReEmitted(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)
	require.NoError(t, s.AddToArchive(sc.ID, "cov_a_id"))

	f := newTestFilter(t, s, sc)
	id, ok, err := f.accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "cov_a_id", id)
}

func TestAccept_SensorType(t *testing.T) {
	s := openStore(t)

	matching := baseScenario()
	matching.SensorType = "OPTICAL"
	_, err := s.CreateScenario(matching)
	require.NoError(t, err)
	_, ok, err := newTestFilter(t, s, matching).accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.True(t, ok)

	other := baseScenario()
	other.NcnID = "scid1"
	other.SensorType = "RADAR"
	_, err = s.CreateScenario(other)
	require.NoError(t, err)
	_, ok, err = newTestFilter(t, s, other).accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.False(t, ok, "case-sensitive exact match required")
}

func TestAccept_CloudCoverMax(t *testing.T) {
	s := openStore(t)

	loose := baseScenario()
	loose.CloudCover = "20"
	_, err := s.CreateScenario(loose)
	require.NoError(t, err)
	_, ok, err := newTestFilter(t, s, loose).accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.True(t, ok, "13.25 <= 20")

	strict := baseScenario()
	strict.NcnID = "scid1"
	strict.CloudCover = "10"
	_, err = s.CreateScenario(strict)
	require.NoError(t, err)
	_, ok, err = newTestFilter(t, s, strict).accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.False(t, ok, "13.25 > 10")
}

func TestAccept_ViewAngleMax(t *testing.T) {
	s := openStore(t)

	sc := baseScenario()
	sc.ViewAngle = "5"
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)
	_, ok, err := newTestFilter(t, s, sc).accept(descriptions(t)[0], "test")
	require.NoError(t, err)
	assert.False(t, ok, "7.2 > 5")
}

func TestAccept_BadRequestValueIsAnError(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	sc.ViewAngle = "not-a-number"
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)

	_, _, err = newTestFilter(t, s, sc).accept(descriptions(t)[0], "test")
	assert.ErrorIs(t, err, ErrIngestion)
}

func TestAccept_CustomConditions(t *testing.T) {
	s := openStore(t)

	cases := []struct {
		name       string
		conditions []store.Condition
		want       bool
	}{
		{"existence", []store.Condition{{XPath: "sensorType"}}, true},
		{"text match", []store.Condition{{XPath: "sensorType", Text: "OPTICAL"}}, true},
		{"text mismatch", []store.Condition{{XPath: "sensorType", Text: "RADAR"}}, false},
		{"missing node", []store.Condition{{XPath: "noSuchElement"}}, false},
		{"and over all", []store.Condition{
			{XPath: "sensorType", Text: "OPTICAL"},
			{XPath: "noSuchElement"},
		}, false},
		{"malformed xpath", []store.Condition{{XPath: "///]["}}, false},
	}

	for i, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sc := baseScenario()
			sc.NcnID = "scid" + strings.Repeat("x", i)
			sc.Conditions = c.conditions
			_, err := s.CreateScenario(sc)
			require.NoError(t, err)

			_, ok, err := newTestFilter(t, s, sc).accept(descriptions(t)[0], "test")
			require.NoError(t, err)
			assert.Equal(t, c.want, ok)
		})
	}
}

func TestAccept_Deterministic(t *testing.T) {
	s := openStore(t)
	sc := baseScenario()
	sc.SensorType = "OPTICAL"
	sc.CloudCover = "20"
	sc.Conditions = []store.Condition{{XPath: "sensorType", Text: "OPTICAL"}}
	_, err := s.CreateScenario(sc)
	require.NoError(t, err)

	f := newTestFilter(t, s, sc)
	for i := 0; i < 3; i++ {
		id, ok, err := f.accept(descriptions(t)[0], "test")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "cov_a_id", id)
	}
}

func TestProductDirWidth(t *testing.T) {
	assert.Equal(t, 3, productDirWidth(1))
	assert.Equal(t, 3, productDirWidth(1000))
	assert.Equal(t, 4, productDirWidth(1001))
	assert.Equal(t, 5, productDirWidth(10001))
}
