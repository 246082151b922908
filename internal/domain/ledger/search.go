package ledger

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// SearchAccounts ranks accounts against a free-text query using fuzzy
// matching on the account name. It backs the account picker shown when a user
// confirms import categorizations. Results are ordered best match first;
// limit <= 0 means no limit.
func SearchAccounts(accounts []Account, query string, limit int) []Account {
	if query == "" {
		return nil
	}

	names := make([]string, len(accounts))
	for i := range accounts {
		names[i] = accounts[i].Name
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Distance < ranks[j].Distance
	})

	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}

	matched := make([]Account, 0, len(ranks))
	for _, rank := range ranks {
		matched = append(matched, accounts[rank.OriginalIndex])
	}
	return matched
}
