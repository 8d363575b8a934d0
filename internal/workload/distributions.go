package workload

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Dates are drawn uniformly from [epochStart, epochEnd] at second granularity.
var (
	epochStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	epochEnd   = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

// ratingWeights favors high scores: weight 1 at rating 0 rising to a peak of
// 25 at rating 8 and tapering at 9 and 10.
var ratingWeights = [11]int{1, 1, 2, 3, 6, 10, 15, 20, 25, 20, 10}

var ratingTotal = func() int {
	total := 0
	for _, w := range ratingWeights {
		total += w
	}
	return total
}()

// Per-entity stream salts. Each entity owns an independent random stream so
// any one file can be regenerated alone.
const (
	saltLikes uint64 = iota + 1
	saltReviews
	saltReactions
	saltBookmarks
	saltEvents
)

func newRand(seed int64, salt uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), salt))
}

// paretoID draws an id in [1, max] from a bounded Pareto distribution with
// the given shape. Small ids form the hot set.
func paretoID(r *rand.Rand, max int64, shape float64) int64 {
	x := 1 / math.Pow(1-r.Float64(), 1/shape)
	if x >= float64(max) {
		return max
	}
	return int64(x)
}

// uniformID draws an id in [1, max].
func uniformID(r *rand.Rand, max int64) int64 {
	return r.Int64N(max) + 1
}

// weightedRating draws a rating in [0, 10] from ratingWeights.
func weightedRating(r *rand.Rand) int {
	n := r.IntN(ratingTotal)
	for rating, w := range ratingWeights {
		if n < w {
			return rating
		}
		n -= w
	}
	return len(ratingWeights) - 1
}

func randomDate(r *rand.Rand) time.Time {
	span := int64(epochEnd.Sub(epochStart) / time.Second)
	return epochStart.Add(time.Duration(r.Int64N(span+1)) * time.Second)
}

const maxReviewText = 400

var reviewWords = strings.Fields(`
	acting actor plot story director scene score soundtrack camera shot
	pacing ending twist character dialogue sequel remake classic drama comedy
	thriller horror romance action visual effects script cast performance
	emotional slow brilliant dull stunning boring memorable forgettable bold
	quiet loud dark bright warm cold clever honest strange familiar fresh
	long short tense gentle sharp rough smooth rich thin deep light
	watch again recommend friends family night cinema screen moment
`)

// reviewText builds a pseudo-sentence paragraph of at most maxReviewText bytes.
func reviewText(r *rand.Rand) string {
	target := 20 + r.IntN(maxReviewText-20)
	var sb strings.Builder
	sentenceStart := true
	for {
		w := reviewWords[r.IntN(len(reviewWords))]
		// room for separator, word and the closing period
		if sb.Len()+1+len(w)+1 > target {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		if sentenceStart {
			sb.WriteString(strings.ToUpper(w[:1]) + w[1:])
			sentenceStart = false
		} else {
			sb.WriteString(w)
		}
		if r.IntN(8) == 0 {
			sb.WriteByte('.')
			sentenceStart = true
		}
	}
	if !sentenceStart {
		sb.WriteByte('.')
	}
	return sb.String()
}
