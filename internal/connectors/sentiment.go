package connectors

import "github.com/replyhub/backend/internal/models"

// sentimentFromStars maps a 1-5 star rating onto a sentiment bucket and a
// normalized 0..1 score. Four stars and up is positive, three is neutral,
// two and below is negative.
func sentimentFromStars(stars int) (models.Sentiment, float64) {
	if stars < 1 {
		stars = 1
	}
	if stars > 5 {
		stars = 5
	}

	score := float64(stars) / 5.0
	switch {
	case stars >= 4:
		return models.SentimentPositive, score
	case stars == 3:
		return models.SentimentNeutral, score
	default:
		return models.SentimentNegative, score
	}
}

// urgencyFromStars gives low-star reviews a head start in the queue.
// One star lands above the urgent threshold.
func urgencyFromStars(stars int) int {
	switch {
	case stars <= 1:
		return models.UrgentThreshold + 1
	case stars == 2:
		return models.UrgentThreshold
	default:
		return models.DefaultUrgency
	}
}
