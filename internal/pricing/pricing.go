// Package pricing holds the token price table consulted at task intake and the
// provider-unit table used for internal cost accounting.
package pricing

import "imagebot/internal/domain"

// DefaultTokenCost applies when a quality is missing from the provider table.
const DefaultTokenCost int64 = 5

// DefaultProviderUnits applies when a (quality, size) pair is not tabulated.
const DefaultProviderUnits int64 = 1000

var tokenCosts = map[domain.ProviderID]map[domain.Quality]int64{
	domain.ProviderStandard: {
		domain.QualityLow:    2,
		domain.QualityMedium: 5,
		domain.QualityHigh:   20,
	},
	domain.ProviderPremium: {
		domain.Quality2K: 5,
		domain.Quality4K: 5,
	},
}

var providerUnits = map[domain.Quality]map[domain.Size]int64{
	domain.QualityLow: {
		domain.SizeSquare:    272,
		domain.SizePortrait:  408,
		domain.SizeLandscape: 400,
	},
	domain.QualityMedium: {
		domain.SizeSquare:    1056,
		domain.SizePortrait:  1584,
		domain.SizeLandscape: 1568,
	},
	domain.QualityHigh: {
		domain.SizeSquare:    4160,
		domain.SizePortrait:  6240,
		domain.SizeLandscape: 6208,
	},
	domain.Quality2K: {
		domain.SizeSquare:    1000,
		domain.SizePortrait:  1000,
		domain.SizeLandscape: 1000,
	},
	domain.Quality4K: {
		domain.SizeSquare:    1500,
		domain.SizePortrait:  1500,
		domain.SizeLandscape: 1500,
	},
}

// BaseCost returns the user-facing token price of one image. Size does not
// affect the price.
func BaseCost(provider domain.ProviderID, quality domain.Quality) int64 {
	if cost, ok := tokenCosts[provider][quality]; ok {
		return cost
	}
	return DefaultTokenCost
}

// ExtraSourceCost is the surcharge for edit tasks with many source images:
// 1-3 included, 4-6 add one token, 7-10 add two.
func ExtraSourceCost(sourceCount int) int64 {
	switch {
	case sourceCount <= 3:
		return 0
	case sourceCount <= 6:
		return 1
	default:
		return 2
	}
}

// Cost is the total amount deducted at intake.
func Cost(provider domain.ProviderID, quality domain.Quality, sourceCount int) int64 {
	return BaseCost(provider, quality) + ExtraSourceCost(sourceCount)
}

// ProviderUnits returns the backend cost recorded on a completed task.
func ProviderUnits(quality domain.Quality, size domain.Size) int64 {
	if units, ok := providerUnits[quality][size]; ok {
		return units
	}
	return DefaultProviderUnits
}

// ValidQuality reports whether quality is offered by provider.
func ValidQuality(provider domain.ProviderID, quality domain.Quality) bool {
	_, ok := tokenCosts[provider][quality]
	return ok
}

// DefaultQuality is the tier preselected for a provider.
func DefaultQuality(provider domain.ProviderID) domain.Quality {
	if provider == domain.ProviderPremium {
		return domain.Quality2K
	}
	return domain.QualityMedium
}

// ConvertQuality maps a quality onto the closest tier of the target provider,
// used when a user switches models with a quality already selected.
func ConvertQuality(quality domain.Quality, target domain.ProviderID) domain.Quality {
	if ValidQuality(target, quality) {
		return quality
	}
	if target == domain.ProviderPremium {
		if quality == domain.QualityHigh {
			return domain.Quality4K
		}
		return domain.Quality2K
	}
	if quality == domain.Quality4K {
		return domain.QualityHigh
	}
	return domain.QualityMedium
}
