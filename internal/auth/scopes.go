package auth

// Known OAuth scopes used by the league endpoints.
const (
	ScopeLeaderboardRead = "leaderboard:read"
	ScopeReconcileWrite  = "reconcile:write"
)
