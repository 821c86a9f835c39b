package points

import "github.com/forge-games/contribot/internal/models"

const (
	PerCommit      = 10
	PerIssue       = 20
	PerPullRequest = 30
)

// Badge thresholds in ascending order. Badges are never revoked.
var Thresholds = []struct {
	Points int
	Badge  string
}{
	{100, "Bronze Collaborator"},
	{500, "Silver Collaborator"},
	{1000, "Gold Collaborator"},
}

func Compute(commits, issues, prs int) int {
	return commits*PerCommit + issues*PerIssue + prs*PerPullRequest
}

// ApplyBadges adds every badge whose threshold the user's points have
// crossed and which the user does not already hold. Idempotent.
// Returns the badges added by this call.
func ApplyBadges(user *models.User) []string {
	var added []string
	for _, t := range Thresholds {
		if user.Points >= t.Points && !user.HasBadge(t.Badge) {
			user.Badges = append(user.Badges, t.Badge)
			added = append(added, t.Badge)
		}
	}
	return added
}
