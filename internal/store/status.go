package store

// Scenario status strings. These are part of the external contract:
// the UI matches on them literally.
const (
	StatusQueued      = "QUEUED"
	StatusIdle        = "IDLE"
	StatusIngestError = "INGEST ERROR"
	StatusNotDeleted  = "NOT DELETED - ERROR."
	StatusStopRequest = "STOP_REQUEST"
)

// ScenarioStatus is the runtime row of one scenario. IsAvailable
// doubles as a logical lock; ActiveDAR is empty when no DAR is
// underway; IngestionPid is 0 when no worker owns the scenario.
type ScenarioStatus struct {
	ScenarioID   int64
	Status       string
	IsAvailable  bool
	Done         float64
	ActiveDAR    string
	IngestionPid int
}

// Status reads the runtime row of a scenario.
func (s *Store) Status(id int64) (*ScenarioStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(id)
}

func (s *Store) statusLocked(id int64) (*ScenarioStatus, error) {
	st := &ScenarioStatus{ScenarioID: id}
	var avail int
	err := s.db.QueryRow(`
		SELECT status, is_available, done, active_dar, ingestion_pid
		FROM scenario_status WHERE scenario_id = ?`, id).Scan(
		&st.Status, &avail, &st.Done, &st.ActiveDAR, &st.IngestionPid)
	if err != nil {
		return nil, err
	}
	st.IsAvailable = avail != 0
	return st, nil
}

// SetScenarioStatus publishes a new status text, availability and
// completion percentage for a scenario. Failures are logged, not
// propagated, so that a missing row never aborts an ingestion run.
func (s *Store) SetScenarioStatus(id int64, isAvailable bool, status string, done float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE scenario_status SET status = ?, is_available = ?, done = ?
		WHERE scenario_id = ?`,
		status, boolToInt(isAvailable), done, id)
	if err != nil {
		s.logger.Error("cannot set scenario status", "scenarioID", id, "error", err)
	}
}

// SetIngestionPid records (or with pid 0 clears) the worker process id
// that owns the scenario's current run.
func (s *Store) SetIngestionPid(id int64, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE scenario_status SET ingestion_pid = ? WHERE scenario_id = ?`, pid, id)
	if err != nil {
		s.logger.Error("cannot set ingestion pid", "scenarioID", id, "error", err)
	}
}

// SetActiveDAR is the per-scenario mutual exclusion for DAR ownership:
// setting a non-empty id over an existing one fails, and clearing an
// already-empty one fails. Both failures return false.
func (s *Store) SetActiveDAR(id int64, darID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.statusLocked(id)
	if err != nil {
		s.logger.Error("cannot read scenario status", "scenarioID", id, "error", err)
		return false
	}
	if darID != "" && st.ActiveDAR != "" {
		s.logger.Error("a DAR is already active for scenario", "scenarioID", id)
		return false
	}
	if darID == "" && st.ActiveDAR == "" {
		return false
	}

	_, err = s.db.Exec(
		`UPDATE scenario_status SET active_dar = ? WHERE scenario_id = ?`, darID, id)
	if err != nil {
		s.logger.Error("cannot set active DAR", "scenarioID", id, "error", err)
	}
	return true
}

// LockScenario atomically claims an available scenario, returning
// false when it is already taken.
func (s *Store) LockScenario(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.statusLocked(id)
	if err != nil {
		s.logger.Error("cannot read scenario status", "scenarioID", id, "error", err)
		return false
	}
	if !st.IsAvailable {
		return false
	}
	_, err = s.db.Exec(
		`UPDATE scenario_status SET is_available = 0 WHERE scenario_id = ?`, id)
	if err != nil {
		s.logger.Error("cannot lock scenario", "scenarioID", id, "error", err)
	}
	return true
}

// RequestStop flips the scenario into STOP_REQUEST when a DAR or an
// ingestion worker is active, otherwise back to IDLE. It clears the
// active DAR and returns the previously active DAR id so the caller
// can cancel its downloads outside the store mutex. currentPid guards
// against stale pids left by another process.
func (s *Store) RequestStop(id int64, currentPid int) (activeDAR string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.statusLocked(id)
	if err != nil {
		s.logger.Error("cannot read scenario status", "scenarioID", id, "error", err)
		return ""
	}

	pid := st.IngestionPid
	if pid != currentPid {
		pid = 0
	}
	if st.ActiveDAR != "" || pid != 0 {
		_, err = s.db.Exec(`
			UPDATE scenario_status
			SET status = ?, is_available = 1, active_dar = ''
			WHERE scenario_id = ?`, StatusStopRequest, id)
	} else {
		_, err = s.db.Exec(`
			UPDATE scenario_status
			SET status = ?, is_available = 1, done = 0
			WHERE scenario_id = ?`, StatusIdle, id)
	}
	if err != nil {
		s.logger.Error("cannot request stop", "scenarioID", id, "error", err)
	}
	return st.ActiveDAR
}

// IsStopping reports whether the scenario carries a pending stop
// request. Workers poll this at every checkpoint.
func (s *Store) IsStopping(id int64) bool {
	st, err := s.Status(id)
	if err != nil {
		s.logger.Error("cannot read scenario status", "scenarioID", id, "error", err)
		return false
	}
	return st.Status == StatusStopRequest
}
