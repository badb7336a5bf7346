package track

// Overlap brackets for fusing geometry with appearance. As geometric
// confidence drops, the appearance term carries more weight; appearance
// never dominates outright because colour histograms confuse similarly
// dressed people.
const (
	weakOverlap   = 0.1
	strongOverlap = 0.3
)

// MatchScore fuses a geometric overlap score g in [0, 1] with an appearance
// distance d in [0, 1] (0 = identical) into a single match quality score.
// Higher is better.
func MatchScore(g, d float64) float64 {
	similarity := 1 - d
	switch {
	case g < weakOverlap:
		return 0.5*g + 0.5*similarity
	case g < strongOverlap:
		return 0.6*g + 0.4*similarity
	default:
		return 0.7*g + 0.3*similarity
	}
}
