package database

import (
	"database/sql"
	"strings"
	"time"
)

// DBorTx is an interface that allows functions to accept either a `*sql.DB` for single queries
// or a `*sql.Tx` for operations within a transaction.
type DBorTx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func placeholders(n int) string {
	return "?" + strings.Repeat(",?", n-1)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- User Queries ---

const userColumns = `strava_id, display_name, first_name, last_name, picture, sex, city, state, country,
	access_token, refresh_token, token_expiry, created_at`

// UpsertUser inserts the athlete or refreshes its profile and tokens. The
// original created_at is kept on update.
func (s *Service) UpsertUser(db DBorTx, u *User) (*User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (strava_id) DO UPDATE SET
			display_name = excluded.display_name,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			picture = excluded.picture,
			sex = excluded.sex,
			city = excluded.city,
			state = excluded.state,
			country = excluded.country,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry;`
	_, err := db.Exec(query,
		u.StravaID, u.DisplayName, u.FirstName, u.LastName, u.Picture, u.Sex,
		u.City, u.State, u.Country, u.AccessToken, u.RefreshToken,
		nullTimeText(&u.TokenExpiry), timeText(time.Now()),
	)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(db, u.StravaID)
}

// UpdateUserTokens stores a refreshed OAuth token pair.
func (s *Service) UpdateUserTokens(db DBorTx, stravaID int64, accessToken, refreshToken string, expiry time.Time) error {
	query := `UPDATE users SET access_token = ?, refresh_token = ?, token_expiry = ? WHERE strava_id = ?;`
	res, err := db.Exec(query, accessToken, refreshToken, nullTimeText(&expiry), stravaID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Service) GetUserByID(db DBorTx, stravaID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE strava_id = ?;`
	user := &User{}
	var expiry sql.NullString
	var created string
	err := db.QueryRow(query, stravaID).Scan(
		&user.StravaID,
		&user.DisplayName,
		&user.FirstName,
		&user.LastName,
		&user.Picture,
		&user.Sex,
		&user.City,
		&user.State,
		&user.Country,
		&user.AccessToken,
		&user.RefreshToken,
		&expiry,
		&created,
	)
	if err != nil {
		return nil, err // Returns sql.ErrNoRows if not found
	}
	if t := parseTimeText(expiry); t != nil {
		user.TokenExpiry = *t
	}
	user.CreatedAt = parseTimeValue(created)
	return user, nil
}

// --- Race Queries ---

const raceSelect = `
	SELECT r.id, r.name, r.info, r.start_date, r.end_date, r.organiser_id, r.is_private,
		r.password_hash, r.hide_leaderboard_until_finish, r.use_sex_categories,
		r.finish_notified, r.created_at,
		COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.display_name, ''),
		(SELECT COUNT(*) FROM participants p WHERE p.race_id = r.id)
	FROM races r
	LEFT JOIN users u ON u.strava_id = r.organiser_id`

func scanRace(row scanner) (*Race, error) {
	race := &Race{}
	var start, end sql.NullString
	var created, first, last, display string
	err := row.Scan(
		&race.ID, &race.Name, &race.Info, &start, &end, &race.OrganiserID, &race.IsPrivate,
		&race.PasswordHash, &race.HideLeaderboardUntilFinish, &race.UseSexCategories,
		&race.FinishNotified, &created,
		&first, &last, &display,
		&race.ParticipantCount,
	)
	if err != nil {
		return nil, err
	}
	race.StartDate = parseTimeText(start)
	race.EndDate = parseTimeText(end)
	race.CreatedAt = parseTimeValue(created)
	race.OrganiserName = riderName(first, last, display, race.OrganiserID)
	return race, nil
}

func (s *Service) queryRaces(db DBorTx, where string, args ...interface{}) ([]*Race, error) {
	rows, err := db.Query(raceSelect+" "+where+" ORDER BY r.start_date DESC, r.id DESC;", args...)
	if err != nil {
		return nil, err
	}

	var races []*Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		races = append(races, race)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.loadSegments(db, races); err != nil {
		return nil, err
	}
	return races, nil
}

// loadSegments fills Segments of every race with a single query.
func (s *Service) loadSegments(db DBorTx, races []*Race) error {
	if len(races) == 0 {
		return nil
	}

	byID := make(map[int64]*Race, len(races))
	ids := make([]interface{}, 0, len(races))
	for _, r := range races {
		byID[r.ID] = r
		r.Segments = []RaceSegment{}
		ids = append(ids, r.ID)
	}

	query := `SELECT race_id, segment_id, segment_name FROM race_segments
		WHERE race_id IN (` + placeholders(len(ids)) + `)
		ORDER BY race_id, position;`
	rows, err := db.Query(query, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var raceID int64
		var seg RaceSegment
		if err := rows.Scan(&raceID, &seg.SegmentID, &seg.Name); err != nil {
			return err
		}
		if r, ok := byID[raceID]; ok {
			r.Segments = append(r.Segments, seg)
		}
	}
	return rows.Err()
}

func insertSegments(db DBorTx, raceID int64, segments []RaceSegment) error {
	for i, seg := range segments {
		_, err := db.Exec(
			`INSERT INTO race_segments (race_id, position, segment_id, segment_name) VALUES (?, ?, ?, ?);`,
			raceID, i, seg.SegmentID, seg.Name,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateRace inserts a private race with its segments in the given order.
func (s *Service) CreateRace(db DBorTx, organiserID int64, p RaceParams) (*Race, error) {
	query := `
		INSERT INTO races (name, info, start_date, end_date, organiser_id, is_private, password_hash,
			hide_leaderboard_until_finish, use_sex_categories, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?);`
	res, err := db.Exec(query,
		p.Name, p.Info, nullTimeText(&p.StartDate), nullTimeText(&p.EndDate), organiserID,
		p.PasswordHash, p.HideLeaderboardUntilFinish, p.UseSexCategories, timeText(time.Now()),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := insertSegments(db, id, p.Segments); err != nil {
		return nil, err
	}
	return s.GetRaceByID(db, id)
}

func (s *Service) GetRaceByID(db DBorTx, id int64) (*Race, error) {
	race, err := scanRace(db.QueryRow(raceSelect+" WHERE r.id = ?;", id))
	if err != nil {
		return nil, err // sql.ErrNoRows if not found
	}
	if err := s.loadSegments(db, []*Race{race}); err != nil {
		return nil, err
	}
	return race, nil
}

func (s *Service) ListRaces(db DBorTx) ([]*Race, error) {
	return s.queryRaces(db, "")
}

// GetRacesByParticipant returns races the user has joined.
func (s *Service) GetRacesByParticipant(db DBorTx, userID int64) ([]*Race, error) {
	return s.queryRaces(db, "WHERE r.id IN (SELECT race_id FROM participants WHERE user_id = ?)", userID)
}

func (s *Service) GetRacesByOrganiser(db DBorTx, userID int64) ([]*Race, error) {
	return s.queryRaces(db, "WHERE r.organiser_id = ?", userID)
}

// UpdateRace rewrites the race and replaces its segments. Results for
// segments no longer in the race are removed, and the finish announcement is
// re-armed since the end date may have moved.
func (s *Service) UpdateRace(db DBorTx, raceID int64, p RaceParams) (*Race, error) {
	var b strings.Builder
	b.WriteString(`UPDATE races SET name = ?, info = ?, start_date = ?, end_date = ?,
		hide_leaderboard_until_finish = ?, use_sex_categories = ?, finish_notified = 0`)
	args := []interface{}{
		p.Name, p.Info, nullTimeText(&p.StartDate), nullTimeText(&p.EndDate),
		p.HideLeaderboardUntilFinish, p.UseSexCategories,
	}
	if p.PasswordHash != "" {
		b.WriteString(", password_hash = ?")
		args = append(args, p.PasswordHash)
	}
	b.WriteString(" WHERE id = ?;")
	args = append(args, raceID)

	res, err := db.Exec(b.String(), args...)
	if err != nil {
		return nil, err
	}
	if err := checkAffected(res); err != nil {
		return nil, err
	}

	if _, err := db.Exec(`DELETE FROM race_segments WHERE race_id = ?;`, raceID); err != nil {
		return nil, err
	}
	if err := insertSegments(db, raceID, p.Segments); err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		DELETE FROM participant_segment_results
		WHERE participant_id IN (SELECT id FROM participants WHERE race_id = ?)
		  AND segment_id NOT IN (SELECT segment_id FROM race_segments WHERE race_id = ?);`,
		raceID, raceID)
	if err != nil {
		return nil, err
	}

	return s.GetRaceByID(db, raceID)
}

// DeleteRace removes the race; segments, participants and results cascade.
func (s *Service) DeleteRace(db DBorTx, raceID int64) error {
	res, err := db.Exec(`DELETE FROM races WHERE id = ?;`, raceID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetFinishedUnnotifiedRaces returns races whose end date is before now and
// whose finish has not been announced yet.
func (s *Service) GetFinishedUnnotifiedRaces(db DBorTx, now time.Time) ([]*Race, error) {
	return s.queryRaces(db,
		"WHERE r.finish_notified = 0 AND r.end_date IS NOT NULL AND r.end_date < ?",
		timeText(now))
}

func (s *Service) MarkRaceFinishNotified(db DBorTx, raceID int64) error {
	res, err := db.Exec(`UPDATE races SET finish_notified = 1 WHERE id = ?;`, raceID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetRaceMemberIDs returns the organiser and every participant of a race.
func (s *Service) GetRaceMemberIDs(db DBorTx, raceID int64) ([]int64, error) {
	query := `
		SELECT organiser_id FROM races WHERE id = ?
		UNION
		SELECT user_id FROM participants WHERE race_id = ?;`
	rows, err := db.Query(query, raceID, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
