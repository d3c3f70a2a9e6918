package store

import (
	"database/sql"
	"fmt"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// InsertFacts stores a batch of extracted facts in one transaction and
// returns how many rows were written.
func (s *Store) InsertFacts(facts []types.Fact) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("store.InsertFacts", err)
	}
	defer tx.Rollback()

	for i := range facts {
		f := &facts[i]
		if _, err := tx.Exec(`
			INSERT INTO research_facts
			(fact_id, session_id, entity, attribute, value, value_type,
			 value_numeric, unit, source_url, source_quality, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.FactID, f.SessionID, f.Entity, f.Attribute, f.Value, f.ValueType,
			f.ValueNumeric, types.NullableString(f.Unit), types.NullableString(f.SourceURL),
			types.NullableString(f.SourceQuality), f.Confidence,
		); err != nil {
			return 0, storageErr("store.InsertFacts", fmt.Errorf("insert fact %s: %w", f.FactID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("store.InsertFacts", err)
	}
	logging.Store().Debugf("stored %d facts for session %s", len(facts), facts[0].SessionID)
	return len(facts), nil
}

// QueryFacts returns a session's facts filtered by the non-zero arguments,
// newest first.
func (s *Store) QueryFacts(sessionID, entity, attribute string, minConfidence float64) ([]types.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT fact_id, session_id, entity, attribute, value, value_type,
		       value_numeric, unit, source_url, source_quality, confidence, created_at
		FROM research_facts WHERE session_id = ?`
	args := []any{sessionID}

	if entity != "" {
		query += ` AND entity = ?`
		args = append(args, entity)
	}
	if attribute != "" {
		query += ` AND attribute = ?`
		args = append(args, attribute)
	}
	if minConfidence > 0 {
		query += ` AND confidence >= ?`
		args = append(args, minConfidence)
	}
	query += ` ORDER BY created_at DESC, fact_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("store.QueryFacts", err)
	}
	defer rows.Close()

	var out []types.Fact
	for rows.Next() {
		var f types.Fact
		var unit, srcURL, srcQuality sql.NullString
		if err := rows.Scan(&f.FactID, &f.SessionID, &f.Entity, &f.Attribute,
			&f.Value, &f.ValueType, &f.ValueNumeric, &unit, &srcURL, &srcQuality,
			&f.Confidence, &f.CreatedAt); err != nil {
			return nil, storageErr("store.QueryFacts", err)
		}
		f.Unit = unit.String
		f.SourceURL = srcURL.String
		f.SourceQuality = srcQuality.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertEntities stores entities, silently skipping duplicates of
// (session, name, type). Returns the number actually inserted.
func (s *Store) InsertEntities(entities []types.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("store.InsertEntities", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range entities {
		e := &entities[i]
		res, err := tx.Exec(`
			INSERT INTO research_entities
			(entity_id, session_id, name, entity_type, evidence, confidence)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, name, entity_type) DO NOTHING`,
			e.EntityID, e.SessionID, e.Name, e.EntityType,
			types.NullableString(e.Evidence), e.Confidence,
		)
		if err != nil {
			return 0, storageErr("store.InsertEntities", fmt.Errorf("insert entity %s: %w", e.Name, err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("store.InsertEntities", err)
	}
	return inserted, nil
}

// EntitiesBySession returns a session's entities in name order.
func (s *Store) EntitiesBySession(sessionID string) ([]types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT entity_id, session_id, name, entity_type, evidence, confidence, created_at
		FROM research_entities WHERE session_id = ? ORDER BY name, entity_type`,
		sessionID)
	if err != nil {
		return nil, storageErr("store.EntitiesBySession", err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		var e types.Entity
		var evidence sql.NullString
		if err := rows.Scan(&e.EntityID, &e.SessionID, &e.Name, &e.EntityType,
			&evidence, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, storageErr("store.EntitiesBySession", err)
		}
		e.Evidence = evidence.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertRelationships stores directed entity edges in one transaction.
func (s *Store) InsertRelationships(rels []types.Relationship) (int, error) {
	if len(rels) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("store.InsertRelationships", err)
	}
	defer tx.Rollback()

	for i := range rels {
		r := &rels[i]
		if _, err := tx.Exec(`
			INSERT INTO research_relationships
			(relationship_id, session_id, source_entity, target_entity,
			 relationship_type, evidence, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RelationshipID, r.SessionID, r.SourceEntity, r.TargetEntity,
			r.RelationshipType, types.NullableString(r.Evidence), r.Confidence,
		); err != nil {
			return 0, storageErr("store.InsertRelationships",
				fmt.Errorf("insert relationship %s: %w", r.RelationshipID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("store.InsertRelationships", err)
	}
	return len(rels), nil
}

// RelationshipsBySession returns a session's relationships, oldest first.
func (s *Store) RelationshipsBySession(sessionID string) ([]types.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT relationship_id, session_id, source_entity, target_entity,
		       relationship_type, evidence, confidence, created_at
		FROM research_relationships WHERE session_id = ?
		ORDER BY created_at, relationship_id`,
		sessionID)
	if err != nil {
		return nil, storageErr("store.RelationshipsBySession", err)
	}
	defer rows.Close()

	var out []types.Relationship
	for rows.Next() {
		var r types.Relationship
		var evidence sql.NullString
		if err := rows.Scan(&r.RelationshipID, &r.SessionID, &r.SourceEntity,
			&r.TargetEntity, &r.RelationshipType, &evidence, &r.Confidence,
			&r.CreatedAt); err != nil {
			return nil, storageErr("store.RelationshipsBySession", err)
		}
		r.Evidence = evidence.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertCitations stores validated citations in one transaction.
func (s *Store) InsertCitations(citations []types.Citation) (int, error) {
	if len(citations) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("store.InsertCitations", err)
	}
	defer tx.Rollback()

	for i := range citations {
		c := &citations[i]
		if _, err := tx.Exec(`
			INSERT INTO research_citations
			(citation_id, session_id, claim, author, title, source, url,
			 publication_date, quality_rating, is_valid, validation_notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.CitationID, c.SessionID, types.NullableString(c.Claim),
			types.NullableString(c.Author), types.NullableString(c.Title),
			types.NullableString(c.Source), types.NullableString(c.URL),
			types.NullableString(c.PublicationDate), types.NullableString(c.QualityRating),
			boolToInt(c.IsValid), types.NullableString(c.ValidationNotes),
		); err != nil {
			return 0, storageErr("store.InsertCitations",
				fmt.Errorf("insert citation %s: %w", c.CitationID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("store.InsertCitations", err)
	}
	return len(citations), nil
}

// CitationsBySession returns a session's citations, oldest first.
func (s *Store) CitationsBySession(sessionID string) ([]types.Citation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT citation_id, session_id, claim, author, title, source, url,
		       publication_date, quality_rating, is_valid, validation_notes, created_at
		FROM research_citations WHERE session_id = ? ORDER BY created_at, citation_id`,
		sessionID)
	if err != nil {
		return nil, storageErr("store.CitationsBySession", err)
	}
	defer rows.Close()

	var out []types.Citation
	for rows.Next() {
		var c types.Citation
		var claim, author, title, source, url, pubDate, rating, notes sql.NullString
		var valid int
		if err := rows.Scan(&c.CitationID, &c.SessionID, &claim, &author, &title,
			&source, &url, &pubDate, &rating, &valid, &notes, &c.CreatedAt); err != nil {
			return nil, storageErr("store.CitationsBySession", err)
		}
		c.Claim = claim.String
		c.Author = author.String
		c.Title = title.String
		c.Source = source.String
		c.URL = url.String
		c.PublicationDate = pubDate.String
		c.QualityRating = rating.String
		c.IsValid = valid != 0
		c.ValidationNotes = notes.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertConflicts stores detected conflicts in one transaction.
func (s *Store) InsertConflicts(conflicts []types.Conflict) (int, error) {
	if len(conflicts) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("store.InsertConflicts", err)
	}
	defer tx.Rollback()

	for i := range conflicts {
		c := &conflicts[i]
		if _, err := tx.Exec(`
			INSERT INTO fact_conflicts
			(conflict_id, session_id, fact_id_1, fact_id_2, entity, attribute,
			 conflict_type, severity, difference_percent, description, resolved)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ConflictID, c.SessionID, c.FactID1, c.FactID2, c.Entity, c.Attribute,
			c.ConflictType, c.Severity, c.DifferencePct,
			types.NullableString(c.Description), boolToInt(c.Resolved),
		); err != nil {
			return 0, storageErr("store.InsertConflicts",
				fmt.Errorf("insert conflict %s: %w", c.ConflictID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("store.InsertConflicts", err)
	}
	return len(conflicts), nil
}

// ConflictsBySession returns a session's conflicts; unresolvedOnly narrows
// to open ones.
func (s *Store) ConflictsBySession(sessionID string, unresolvedOnly bool) ([]types.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT conflict_id, session_id, fact_id_1, fact_id_2, entity, attribute,
		       conflict_type, severity, difference_percent, description, resolved, created_at
		FROM fact_conflicts WHERE session_id = ?`
	if unresolvedOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at, conflict_id`

	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, storageErr("store.ConflictsBySession", err)
	}
	defer rows.Close()

	var out []types.Conflict
	for rows.Next() {
		var c types.Conflict
		var desc sql.NullString
		var resolved int
		if err := rows.Scan(&c.ConflictID, &c.SessionID, &c.FactID1, &c.FactID2,
			&c.Entity, &c.Attribute, &c.ConflictType, &c.Severity, &c.DifferencePct,
			&desc, &resolved, &c.CreatedAt); err != nil {
			return nil, storageErr("store.ConflictsBySession", err)
		}
		c.Description = desc.String
		c.Resolved = resolved != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveConflict marks one conflict resolved, appending the resolution to
// its description.
func (s *Store) ResolveConflict(conflictID, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE fact_conflicts SET resolved = 1`
	args := []any{}
	if resolution != "" {
		query += `, description = COALESCE(description, '') || ? `
		args = append(args, " | resolved: "+resolution)
	}
	query += ` WHERE conflict_id = ?`
	args = append(args, conflictID)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return storageErr("store.ResolveConflict", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.ResolveConflict", "conflict", conflictID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
