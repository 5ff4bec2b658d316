package usecase

import "github.com/kirillkom/inbox-triage/internal/core/domain"

// SelectStrategy picks the retrieval strategy from the shape of the filter.
func SelectStrategy(filter domain.ParsedFilter) domain.Strategy {
	hasStructured := filter.Sender != "" || !filter.Timeframe.IsZero() || filter.Bucket != ""
	hasTopic := filter.Topic != ""

	switch {
	case hasStructured && hasTopic:
		return domain.StrategyHybrid
	case hasStructured:
		return domain.StrategyStructured
	case hasTopic:
		return domain.StrategyVector
	default:
		return domain.StrategyRecent
	}
}
