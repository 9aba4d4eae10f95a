package scoring

import "math"

// Params controls how a raw quiz performance maps into the moderated band.
type Params struct {
	QuestionsInSession int
	WeightAnswered     float64
	WeightCorrect      float64
	Low                float64
	High               float64
	DecimalPlaces      int
}

// Moderate converts a raw (answered, correct) performance into the moderated
// score used for matching. The result lies in the closed band [Low, High];
// a player who never answered gets the 0.0 sentinel and is never paired.
func Moderate(p Params, totalAnswered, totalCorrect int) float64 {
	if totalAnswered == 0 {
		return 0.0
	}

	n := float64(p.QuestionsInSession)
	answeredFraction := float64(totalAnswered) / n
	correctFraction := float64(totalCorrect) / n

	raw := 100 * (p.WeightAnswered*answeredFraction + p.WeightCorrect*correctFraction)

	moderated := p.Low + (raw/100)*(p.High-p.Low)
	return Round(moderated, p.DecimalPlaces)
}

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(x*shift) / shift
}
