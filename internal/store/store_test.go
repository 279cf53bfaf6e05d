package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eo-tools/eoingest/internal/geom"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scenarios.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleScenario() *Scenario {
	return &Scenario{
		NcnID:           "scid0",
		Dsrc:            "http://pf.example.com/wcs",
		AoiBbox:         geom.NewBbox(orb.Point{8, 50}, orb.Point{12.3, 55}),
		FromDate:        "2013-06-01T00:00:00",
		ToDate:          "2013-07-01T00:00:00",
		RepeatInterval:  0,
		CatRegistration: true,
		SensorType:      "OPTICAL",
		CloudCover:      "20",
		CoastlineCheck:  true,
		EOIDs:           []string{"series_A", "series_B"},
		Conditions: []Condition{
			{XPath: "sensorType", Text: "OPTICAL"},
			{XPath: "cloudCoverPercentage"},
		},
		Scripts: []string{"/opt/ie/scripts/default_ingest.sh"},
	}
}

func TestScenarioRoundTrip(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.GetScenario(id)
	require.NoError(t, err)

	assert.Equal(t, "scid0", got.NcnID)
	assert.Equal(t, DsrcEOWCS, got.DsrcType, "defaulted on insert")
	assert.Equal(t, orb.Point{8, 50}, got.AoiBbox.LL)
	assert.Equal(t, orb.Point{12.3, 55}, got.AoiBbox.UR)
	assert.True(t, got.CatRegistration)
	assert.True(t, got.CoastlineCheck)
	assert.Equal(t, []string{"series_A", "series_B"}, got.EOIDs)
	require.Len(t, got.Conditions, 2)
	assert.Equal(t, Condition{XPath: "sensorType", Text: "OPTICAL"}, got.Conditions[0])
	assert.Equal(t, []string{"/opt/ie/scripts/default_ingest.sh"}, got.Scripts)

	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
	assert.True(t, st.IsAvailable)
	assert.Empty(t, st.ActiveDAR)
}

func TestListScenarios(t *testing.T) {
	s := openTestStore(t)

	first := sampleScenario()
	_, err := s.CreateScenario(first)
	require.NoError(t, err)

	second := sampleScenario()
	second.NcnID = "scid1"
	_, err = s.CreateScenario(second)
	require.NoError(t, err)

	all, err := s.ListScenarios()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "scid0", all[0].NcnID)
	assert.Equal(t, "scid1", all[1].NcnID)
}

func TestSetStartingDate(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	next := time.Date(2013, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetStartingDate(id, next))

	got, err := s.GetScenario(id)
	require.NoError(t, err)
	assert.True(t, next.Equal(got.StartingDate))
}

func TestSetScenarioStatus(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	s.SetScenarioStatus(id, false, "GENERATING URLS", 1)

	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "GENERATING URLS", st.Status)
	assert.False(t, st.IsAvailable)
	assert.Equal(t, 1.0, st.Done)
}

func TestLockScenario(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	assert.True(t, s.LockScenario(id))
	assert.False(t, s.LockScenario(id), "second lock must fail")
}

func TestSetActiveDAR(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	assert.False(t, s.SetActiveDAR(id, ""), "clearing an empty DAR fails")
	assert.True(t, s.SetActiveDAR(id, "dar-1"))
	assert.False(t, s.SetActiveDAR(id, "dar-2"), "a DAR is already active")
	assert.True(t, s.SetActiveDAR(id, ""))
	assert.False(t, s.SetActiveDAR(id, ""))
}

func TestSetActiveDAR_MutualExclusion(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	const n = 8
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.SetActiveDAR(id, "contended")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, r := range results {
		if r {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent setter must win")
}

func TestRequestStop(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	// nothing active: back to IDLE
	assert.Empty(t, s.RequestStop(id, 1234))
	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
	assert.True(t, st.IsAvailable)

	// active DAR: STOP_REQUEST, DAR cleared and returned
	require.True(t, s.SetActiveDAR(id, "dar-9"))
	assert.Equal(t, "dar-9", s.RequestStop(id, 1234))

	st, err = s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusStopRequest, st.Status)
	assert.Empty(t, st.ActiveDAR)
	assert.True(t, s.IsStopping(id))
}

func TestRequestStop_StalePid(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	// a pid from another process does not count as active
	s.SetIngestionPid(id, 99999)
	s.RequestStop(id, 1234)

	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestArchive(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	assert.False(t, s.IsArchived(id, "cov_a_id"))
	require.NoError(t, s.AddToArchive(id, "cov_a_id"))
	assert.True(t, s.IsArchived(id, "cov_a_id"))
	require.NoError(t, s.AddToArchive(id, "cov_a_id"), "re-adding is a no-op")
	assert.False(t, s.IsArchived(id+1, "cov_a_id"), "archive is per scenario")
}

func TestDeleteScenario(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateScenario(sampleScenario())
	require.NoError(t, err)

	require.NoError(t, s.DeleteScenario(id))

	_, err = s.GetScenario(id)
	assert.Error(t, err)
	_, err = s.Status(id)
	assert.Error(t, err, "status row cascades")
}
