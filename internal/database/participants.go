package database

import (
	"database/sql"
	"errors"
	"time"
)

// --- Participant Queries ---

const participantSelect = `
	SELECT p.id, p.race_id, p.user_id, p.submitted_ride, p.submitted_activity_id, p.joined_at,
		u.first_name, u.last_name, u.display_name, u.picture, u.sex
	FROM participants p
	JOIN users u ON u.strava_id = p.user_id`

func scanParticipant(row scanner) (*Participant, error) {
	p := &Participant{}
	var joined, first, last, display string
	err := row.Scan(
		&p.ID, &p.RaceID, &p.UserID, &p.SubmittedRide, &p.SubmittedActivityID, &joined,
		&first, &last, &display, &p.Picture, &p.Sex,
	)
	if err != nil {
		return nil, err
	}
	p.JoinedAt = parseTimeValue(joined)
	p.Name = riderName(first, last, display, p.UserID)
	p.SegmentResults = []SegmentResult{}
	return p, nil
}

// AddParticipant joins a user to a race. Joining twice violates the
// (race_id, user_id) unique constraint.
func (s *Service) AddParticipant(db DBorTx, raceID, userID int64) (*Participant, error) {
	query := `INSERT INTO participants (race_id, user_id, joined_at) VALUES (?, ?, ?);`
	res, err := db.Exec(query, raceID, userID, timeText(time.Now()))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetParticipantByID(db, id)
}

func (s *Service) GetParticipantByID(db DBorTx, id int64) (*Participant, error) {
	return s.getParticipant(db, " WHERE p.id = ?;", id)
}

// GetParticipantByRaceAndUser returns sql.ErrNoRows when the user has not joined.
func (s *Service) GetParticipantByRaceAndUser(db DBorTx, raceID, userID int64) (*Participant, error) {
	return s.getParticipant(db, " WHERE p.race_id = ? AND p.user_id = ?;", raceID, userID)
}

func (s *Service) getParticipant(db DBorTx, where string, args ...interface{}) (*Participant, error) {
	p, err := scanParticipant(db.QueryRow(participantSelect+where, args...))
	if err != nil {
		return nil, err
	}
	if err := loadResults(db, []*Participant{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetParticipantsByRaceID returns participants in join order with their
// segment results.
func (s *Service) GetParticipantsByRaceID(db DBorTx, raceID int64) ([]*Participant, error) {
	rows, err := db.Query(participantSelect+" WHERE p.race_id = ? ORDER BY p.joined_at, p.id;", raceID)
	if err != nil {
		return nil, err
	}

	participants := []*Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := loadResults(db, participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *Service) CountParticipants(db DBorTx, raceID int64) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM participants WHERE race_id = ?;`, raceID).Scan(&n)
	return n, err
}

// DeleteParticipant removes a participant from the given race. ErrNotFound
// means the participant does not exist or belongs to another race.
func (s *Service) DeleteParticipant(db DBorTx, raceID, participantID int64) error {
	res, err := db.Exec(`DELETE FROM participants WHERE id = ? AND race_id = ?;`, participantID, raceID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// --- Segment Result Queries ---

func loadResults(db DBorTx, participants []*Participant) error {
	if len(participants) == 0 {
		return nil
	}

	byID := make(map[int64]*Participant, len(participants))
	ids := make([]interface{}, 0, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	query := `SELECT id, participant_id, segment_id, segment_name, elapsed_time_seconds
		FROM participant_segment_results
		WHERE participant_id IN (` + placeholders(len(ids)) + `)
		ORDER BY id;`
	rows, err := db.Query(query, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r SegmentResult
		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.SegmentID, &r.SegmentName, &r.ElapsedTimeSeconds); err != nil {
			return err
		}
		if p, ok := byID[r.ParticipantID]; ok {
			p.SegmentResults = append(p.SegmentResults, r)
		}
	}
	return rows.Err()
}

// ReplaceSegmentResults swaps a participant's results for those of a newly
// submitted activity and marks the ride as submitted. Results for segments
// that are not part of the race are skipped. It returns how many were stored.
// Run it inside WriteTx so the delete and inserts are atomic.
func (s *Service) ReplaceSegmentResults(db DBorTx, participantID, activityID int64, results []SegmentResult) (int, error) {
	var raceID int64
	err := db.QueryRow(`SELECT race_id FROM participants WHERE id = ?;`, participantID).Scan(&raceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	allowed := make(map[int64]bool)
	rows, err := db.Query(`SELECT segment_id FROM race_segments WHERE race_id = ?;`, raceID)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		allowed[id] = true
	}
	rows.Close()

	if _, err := db.Exec(`DELETE FROM participant_segment_results WHERE participant_id = ?;`, participantID); err != nil {
		return 0, err
	}

	stored := 0
	for _, r := range results {
		if !allowed[r.SegmentID] {
			continue
		}
		_, err := db.Exec(`
			INSERT INTO participant_segment_results (participant_id, segment_id, segment_name, elapsed_time_seconds)
			VALUES (?, ?, ?, ?);`,
			participantID, r.SegmentID, r.SegmentName, r.ElapsedTimeSeconds,
		)
		if err != nil {
			return 0, err
		}
		stored++
	}

	_, err = db.Exec(`UPDATE participants SET submitted_ride = 1, submitted_activity_id = ? WHERE id = ?;`,
		activityID, participantID)
	if err != nil {
		return 0, err
	}
	return stored, nil
}
