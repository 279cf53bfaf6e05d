package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/eo-tools/eoingest/internal/geom"
)

// DsrcEOWCS is the only data source type the engine implements.
const DsrcEOWCS = "EOWCS"

// Condition is one user-defined metadata predicate: the XPath must
// resolve to at least one node, and when Text is non-empty at least one
// matching node must carry exactly that text.
type Condition struct {
	XPath string
	Text  string
}

// Scenario is one ingestion scenario as configured by the operator.
// ViewAngle and CloudCover hold the raw request strings; they are
// parsed when the predicate chain runs so that a malformed value is
// reported against the scenario that carries it.
type Scenario struct {
	ID              int64
	NcnID           string
	Dsrc            string
	DsrcType        string
	AoiBbox         geom.Bbox
	FromDate        string
	ToDate          string
	StartingDate    time.Time
	RepeatInterval  int64 // seconds, 0 = one-shot
	CatRegistration bool
	SensorType      string
	ViewAngle       string
	CloudCover      string
	CoastlineCheck  bool
	EOIDs           []string
	Conditions      []Condition
	Scripts         []string
}

// CreateScenario inserts a scenario with its child rows and an IDLE
// status row, returning the new id.
func (s *Store) CreateScenario(sc *Scenario) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if sc.DsrcType == "" {
		sc.DsrcType = DsrcEOWCS
	}
	res, err := tx.Exec(`
		INSERT INTO scenario (
			ncn_id, dsrc, dsrc_type,
			aoi_ll_east, aoi_ll_north, aoi_ur_east, aoi_ur_north,
			from_date, to_date, starting_date, repeat_interval,
			cat_registration, sensor_type, view_angle, cloud_cover,
			coastline_check
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.NcnID, sc.Dsrc, sc.DsrcType,
		sc.AoiBbox.LL[0], sc.AoiBbox.LL[1], sc.AoiBbox.UR[0], sc.AoiBbox.UR[1],
		sc.FromDate, sc.ToDate, formatTime(sc.StartingDate), sc.RepeatInterval,
		boolToInt(sc.CatRegistration), sc.SensorType, sc.ViewAngle, sc.CloudCover,
		boolToInt(sc.CoastlineCheck))
	if err != nil {
		return 0, fmt.Errorf("failed to insert scenario: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read scenario id: %w", err)
	}

	if err := insertChildren(tx, id, sc); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(
		`INSERT INTO scenario_status (scenario_id, status) VALUES (?, ?)`,
		id, StatusIdle); err != nil {
		return 0, fmt.Errorf("failed to insert scenario status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scenario: %w", err)
	}
	sc.ID = id
	return id, nil
}

func insertChildren(tx *sql.Tx, id int64, sc *Scenario) error {
	for _, eoid := range sc.EOIDs {
		if _, err := tx.Exec(
			`INSERT INTO eoid (scenario_id, eoid) VALUES (?, ?)`, id, eoid); err != nil {
			return fmt.Errorf("failed to insert eoid: %w", err)
		}
	}
	for i, c := range sc.Conditions {
		if _, err := tx.Exec(
			`INSERT INTO extracondition (scenario_id, seq, xpath, text) VALUES (?, ?, ?, ?)`,
			id, i, c.XPath, c.Text); err != nil {
			return fmt.Errorf("failed to insert condition: %w", err)
		}
	}
	for i, p := range sc.Scripts {
		if _, err := tx.Exec(
			`INSERT INTO script (scenario_id, seq, path) VALUES (?, ?, ?)`,
			id, i, p); err != nil {
			return fmt.Errorf("failed to insert script: %w", err)
		}
	}
	return nil
}

// GetScenario loads a scenario with its child rows.
func (s *Store) GetScenario(id int64) (*Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getScenarioLocked(id)
}

func (s *Store) getScenarioLocked(id int64) (*Scenario, error) {
	sc := &Scenario{ID: id}
	var llE, llN, urE, urN float64
	var startingDate string
	var catReg, coastCk int

	err := s.db.QueryRow(`
		SELECT ncn_id, dsrc, dsrc_type,
			aoi_ll_east, aoi_ll_north, aoi_ur_east, aoi_ur_north,
			from_date, to_date, starting_date, repeat_interval,
			cat_registration, sensor_type, view_angle, cloud_cover,
			coastline_check
		FROM scenario WHERE id = ?`, id).Scan(
		&sc.NcnID, &sc.Dsrc, &sc.DsrcType,
		&llE, &llN, &urE, &urN,
		&sc.FromDate, &sc.ToDate, &startingDate, &sc.RepeatInterval,
		&catReg, &sc.SensorType, &sc.ViewAngle, &sc.CloudCover,
		&coastCk)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %d: %w", id, err)
	}
	sc.AoiBbox = geom.NewBbox(orb.Point{llE, llN}, orb.Point{urE, urN})
	sc.StartingDate = parseTime(startingDate)
	sc.CatRegistration = catReg != 0
	sc.CoastlineCheck = coastCk != 0

	if err := s.loadChildren(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Store) loadChildren(sc *Scenario) error {
	rows, err := s.db.Query(
		`SELECT eoid FROM eoid WHERE scenario_id = ?`, sc.ID)
	if err != nil {
		return fmt.Errorf("failed to load eoids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eoid string
		if err := rows.Scan(&eoid); err != nil {
			return err
		}
		sc.EOIDs = append(sc.EOIDs, eoid)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	conds, err := s.db.Query(
		`SELECT xpath, text FROM extracondition WHERE scenario_id = ? ORDER BY seq`, sc.ID)
	if err != nil {
		return fmt.Errorf("failed to load conditions: %w", err)
	}
	defer conds.Close()
	for conds.Next() {
		var c Condition
		if err := conds.Scan(&c.XPath, &c.Text); err != nil {
			return err
		}
		sc.Conditions = append(sc.Conditions, c)
	}
	if err := conds.Err(); err != nil {
		return err
	}

	scripts, err := s.db.Query(
		`SELECT path FROM script WHERE scenario_id = ? ORDER BY seq`, sc.ID)
	if err != nil {
		return fmt.Errorf("failed to load scripts: %w", err)
	}
	defer scripts.Close()
	for scripts.Next() {
		var p string
		if err := scripts.Scan(&p); err != nil {
			return err
		}
		sc.Scripts = append(sc.Scripts, p)
	}
	return scripts.Err()
}

// ListScenarios loads every scenario, child rows included. The
// auto-trigger scans this list once per interval.
func (s *Store) ListScenarios() ([]*Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM scenario ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	scenarios := make([]*Scenario, 0, len(ids))
	for _, id := range ids {
		sc, err := s.getScenarioLocked(id)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// SetStartingDate persists an advanced auto-trigger starting date.
func (s *Store) SetStartingDate(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE scenario SET starting_date = ? WHERE id = ?`, formatTime(t), id)
	if err != nil {
		return fmt.Errorf("failed to update starting date: %w", err)
	}
	return nil
}

// DeleteScenario removes a scenario with all child and status rows.
func (s *Store) DeleteScenario(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM scenario WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete scenario %d: %w", id, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
