// Package profile stores user profiles and scores how complete they are.
//
// # Completeness
//
// Each field carries a weight and the weights sum to 100:
//
//	email 20, full name 20, avatar 15, bio 15, company 10, website 10, timezone 10
//
// Completeness reports the percentage of weight present and the missing
// fields in that order, so the UI can prompt for the most valuable one first.
//
// # Usage Example
//
//	p, err := store.Get(ctx, userID)
//	score := profile.Completeness(p)
//	fmt.Printf("%d%% complete, missing %v\n", score.Percent, score.Missing)
package profile
