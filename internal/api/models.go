package api

import (
	"time"

	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/leaderboard"
)

// UserResponse is the public profile of an athlete. Tokens never leave the
// server.
type UserResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Picture     string    `json:"picture"`
	Sex         string    `json:"sex"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Country     string    `json:"country"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toUserResponse(user *database.User) UserResponse {
	return UserResponse{
		ID:          user.StravaID,
		Name:        user.Name(),
		DisplayName: user.DisplayName,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Picture:     user.Picture,
		Sex:         user.Sex,
		City:        user.City,
		State:       user.State,
		Country:     user.Country,
		CreatedAt:   user.CreatedAt,
	}
}

type SegmentResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RaceResponse is the race summary used by lists and as the head of the
// detail view.
type RaceResponse struct {
	ID                         int64              `json:"id"`
	Name                       string             `json:"name"`
	Description                string             `json:"description"`
	StartDate                  *time.Time         `json:"startDate"`
	EndDate                    *time.Time         `json:"endDate"`
	Status                     leaderboard.Status `json:"status"`
	OrganiserID                int64              `json:"organiserId"`
	OrganiserName              string             `json:"organiserName"`
	IsPrivate                  bool               `json:"isPrivate"`
	HideLeaderboardUntilFinish bool               `json:"hideLeaderboardUntilFinish"`
	UseSexCategories           bool               `json:"useSexCategories"`
	Segments                   []SegmentResponse  `json:"segments"`
	ParticipantCount           int                `json:"participantCount"`
	CreatedAt                  time.Time          `json:"createdAt"`
}

func toRaceResponse(race *database.Race, now time.Time) RaceResponse {
	segments := make([]SegmentResponse, 0, len(race.Segments))
	for _, seg := range race.Segments {
		segments = append(segments, SegmentResponse{ID: seg.SegmentID, Name: seg.Name})
	}
	return RaceResponse{
		ID:                         race.ID,
		Name:                       race.Name,
		Description:                race.Info,
		StartDate:                  race.StartDate,
		EndDate:                    race.EndDate,
		Status:                     leaderboard.RaceStatus(now, race.StartDate, race.EndDate),
		OrganiserID:                race.OrganiserID,
		OrganiserName:              race.OrganiserName,
		IsPrivate:                  race.IsPrivate,
		HideLeaderboardUntilFinish: race.HideLeaderboardUntilFinish,
		UseSexCategories:           race.UseSexCategories,
		Segments:                   segments,
		ParticipantCount:           race.ParticipantCount,
		CreatedAt:                  race.CreatedAt,
	}
}

func toRaceResponseList(races []*database.Race, now time.Time) []RaceResponse {
	list := make([]RaceResponse, 0, len(races))
	for _, race := range races {
		list = append(list, toRaceResponse(race, now))
	}
	return list
}

// SegmentResultResponse carries a stored effort. Hidden is set instead of
// ElapsedTimeSeconds when the viewer may not see this rider's times.
type SegmentResultResponse struct {
	SegmentID          int64  `json:"segmentId"`
	SegmentName        string `json:"segmentName"`
	ElapsedTimeSeconds *int64 `json:"elapsedTimeSeconds"`
	Hidden             bool   `json:"hidden"`
}

type ParticipantResponse struct {
	ID                  int64                   `json:"id"`
	UserID              int64                   `json:"userId"`
	Name                string                  `json:"name"`
	Picture             string                  `json:"picture"`
	Sex                 string                  `json:"sex"`
	SubmittedRide       bool                    `json:"submittedRide"`
	SubmittedActivityID *int64                  `json:"submittedActivityId"`
	JoinedAt            time.Time               `json:"joinedAt"`
	SegmentResults      []SegmentResultResponse `json:"segmentResults"`
}

func toParticipantResponse(p *database.Participant, visible bool) ParticipantResponse {
	resp := ParticipantResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		Name:           p.Name,
		Picture:        p.Picture,
		Sex:            p.Sex,
		SubmittedRide:  p.SubmittedRide,
		JoinedAt:       p.JoinedAt,
		SegmentResults: make([]SegmentResultResponse, 0, len(p.SegmentResults)),
	}
	if p.SubmittedActivityID.Valid {
		id := p.SubmittedActivityID.Int64
		resp.SubmittedActivityID = &id
	}
	for _, sr := range p.SegmentResults {
		out := SegmentResultResponse{SegmentID: sr.SegmentID, SegmentName: sr.SegmentName}
		switch {
		case !sr.ElapsedTimeSeconds.Valid:
		case visible:
			secs := sr.ElapsedTimeSeconds.Int64
			out.ElapsedTimeSeconds = &secs
		default:
			out.Hidden = true
		}
		resp.SegmentResults = append(resp.SegmentResults, out)
	}
	return resp
}

// RaceDetailResponse is a race with its participants as seen by one viewer.
type RaceDetailResponse struct {
	RaceResponse
	Participants  []ParticipantResponse `json:"participants"`
	IsOrganiser   bool                  `json:"isOrganiser"`
	IsParticipant bool                  `json:"isParticipant"`
	Masked        bool                  `json:"masked"`
}

func toRaceDetailResponse(race *database.Race, participants []*database.Participant, viewerID int64, now time.Time) RaceDetailResponse {
	summary := toRaceResponse(race, now)
	isOrganiser := race.OrganiserID == viewerID

	detail := RaceDetailResponse{
		RaceResponse: summary,
		Participants: make([]ParticipantResponse, 0, len(participants)),
		IsOrganiser:  isOrganiser,
		Masked: leaderboard.Masked(toLeaderboardRace(race), summary.Status,
			leaderboard.Viewer{UserID: viewerID}),
	}
	detail.ParticipantCount = len(participants)

	for _, p := range participants {
		isSelf := p.UserID == viewerID
		if isSelf {
			detail.IsParticipant = true
		}
		visible := leaderboard.CanViewTimes(race.HideLeaderboardUntilFinish, summary.Status, isOrganiser, isSelf)
		detail.Participants = append(detail.Participants, toParticipantResponse(p, visible))
	}
	return detail
}

// toLeaderboardRace maps a stored race onto the engine's snapshot.
func toLeaderboardRace(race *database.Race) leaderboard.Race {
	return leaderboard.Race{
		ID:                         race.ID,
		SegmentIDs:                 race.SegmentIDs(),
		OrganiserID:                race.OrganiserID,
		StartDate:                  race.StartDate,
		EndDate:                    race.EndDate,
		IsPrivate:                  race.IsPrivate,
		HideLeaderboardUntilFinish: race.HideLeaderboardUntilFinish,
		UseSexCategories:           race.UseSexCategories,
	}
}

func toLeaderboardParticipants(participants []*database.Participant) []leaderboard.Participant {
	out := make([]leaderboard.Participant, 0, len(participants))
	for _, p := range participants {
		lp := leaderboard.Participant{
			ID:             p.ID,
			UserID:         p.UserID,
			Name:           p.Name,
			Picture:        p.Picture,
			Sex:            p.Sex,
			SubmittedRide:  p.SubmittedRide,
			SegmentResults: make([]leaderboard.SegmentResult, 0, len(p.SegmentResults)),
		}
		if p.SubmittedActivityID.Valid {
			id := p.SubmittedActivityID.Int64
			lp.SubmittedActivityID = &id
		}
		for _, sr := range p.SegmentResults {
			res := leaderboard.SegmentResult{SegmentID: sr.SegmentID}
			if sr.ElapsedTimeSeconds.Valid {
				secs := int(sr.ElapsedTimeSeconds.Int64)
				res.ElapsedTimeSeconds = &secs
			}
			lp.SegmentResults = append(lp.SegmentResults, res)
		}
		out = append(out, lp)
	}
	return out
}

// ActivityResponse is a ride the participant may submit.
type ActivityResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	StartDateLocal string  `json:"startDateLocal"`
	Distance       float64 `json:"distance"`
	ElapsedTime    int     `json:"elapsedTime"`
	Type           string  `json:"type"`
}
