package image

import "imagebot/internal/domain"

// ResolutionTable maps a quality tier and aspect selector onto the pixel
// size string a backend expects.
type ResolutionTable map[domain.Quality]map[domain.Size]string

// Resolve looks up the backend size. ok is false for unsupported pairs.
func (t ResolutionTable) Resolve(q domain.Quality, s domain.Size) (string, bool) {
	sizes, ok := t[q]
	if !ok {
		return "", false
	}
	res, ok := sizes[s]
	return res, ok
}

// Supports reports whether q has at least one entry.
func (t ResolutionTable) Supports(q domain.Quality) bool {
	_, ok := t[q]
	return ok
}

func sameSize(qualities ...domain.Quality) ResolutionTable {
	t := make(ResolutionTable, len(qualities))
	for _, q := range qualities {
		t[q] = map[domain.Size]string{
			domain.SizeSquare:    string(domain.SizeSquare),
			domain.SizePortrait:  string(domain.SizePortrait),
			domain.SizeLandscape: string(domain.SizeLandscape),
		}
	}
	return t
}

// StandardResolutions passes the aspect selector through unchanged; quality
// is sent as a separate parameter.
var StandardResolutions = sameSize(domain.QualityLow, domain.QualityMedium, domain.QualityHigh)

// PremiumResolutions encodes the quality tier in the pixel size.
var PremiumResolutions = ResolutionTable{
	domain.Quality2K: {
		domain.SizeSquare:    "2048x2048",
		domain.SizePortrait:  "2048x3072",
		domain.SizeLandscape: "3072x2048",
	},
	domain.Quality4K: {
		domain.SizeSquare:    "4096x4096",
		domain.SizePortrait:  "4096x4096",
		domain.SizeLandscape: "4096x4096",
	},
}
