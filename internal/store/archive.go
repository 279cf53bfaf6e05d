package store

import "fmt"

// IsArchived reports whether the coverage was already ingested for the
// scenario. Archived coverages are never re-emitted.
func (s *Store) IsArchived(scenarioID int64, eoid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM archive WHERE scenario_id = ? AND eoid = ?`,
		scenarioID, eoid).Scan(&n)
	if err != nil {
		s.logger.Error("cannot query archive", "scenarioID", scenarioID, "error", err)
		return false
	}
	return n > 0
}

// AddToArchive records an ingested coverage. Re-adding is a no-op.
func (s *Store) AddToArchive(scenarioID int64, eoid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO archive (scenario_id, eoid) VALUES (?, ?)`,
		scenarioID, eoid)
	if err != nil {
		return fmt.Errorf("failed to archive coverage %q: %w", eoid, err)
	}
	return nil
}
