package leaderboard

// CanViewTimes decides whether a viewer may see a given rider's times.
// Organisers always can, nobody is masked once the race is finished or when the
// race does not hide its leaderboard, and riders can always see their own times.
func CanViewTimes(hideUntilFinish bool, status Status, viewerIsOrganiser, viewerIsParticipant bool) bool {
	return viewerIsOrganiser ||
		status == StatusFinished ||
		!hideUntilFinish ||
		viewerIsParticipant
}

// Masked reports whether other riders' times are hidden from this viewer.
func Masked(race Race, status Status, viewer Viewer) bool {
	isOrganiser := viewer.UserID != 0 && viewer.UserID == race.OrganiserID
	return !CanViewTimes(race.HideLeaderboardUntilFinish, status, isOrganiser, false)
}
