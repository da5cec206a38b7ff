package app

import "github.com/jsamuelsen/quote-sync/internal/domain"

// SeedQuotes returns the built-in collection used before anything is persisted.
func SeedQuotes() []domain.Quote {
	return []domain.Quote{
		{ID: "local_1", Text: "The only way to do great work is to love what you do.", Category: "inspiration", Timestamp: 1},
		{ID: "local_2", Text: "Innovation distinguishes between a leader and a follower.", Category: "business", Timestamp: 1},
		{ID: "local_3", Text: "Your time is limited, don't waste it living someone else's life.", Category: "life", Timestamp: 1},
		{ID: "local_4", Text: "Stay hungry, stay foolish.", Category: "motivation", Timestamp: 1},
		{ID: "local_5", Text: "The greatest glory in living lies not in never falling, but in rising every time we fall.", Category: "life", Timestamp: 1},
	}
}
