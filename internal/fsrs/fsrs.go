// Package fsrs computes card schedules with the three-component
// (difficulty, stability, retrievability) memory model.
package fsrs

import (
	"math"
	"math/rand"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Factor is the fixed decay constant of the forgetting curve.
const Factor = 19.0 / 81.0

const (
	minStability  = 0.1
	maxStability  = 36500.0
	minDifficulty = 1.0
	maxDifficulty = 10.0

	latencyReference = 8000 * time.Millisecond
	latencyWeight    = 0.3
	fuzzRatio        = 0.05
)

// DefaultWeights is the 19-weight parameter vector driving every formula.
var DefaultWeights = [19]float64{
	0.4072, 1.1829, 3.1262, 15.4722, // w0..w3 initial stability per rating
	7.2102, 0.5316, 1.0651, 0.0234, // w4..w7 difficulty
	1.616, 0.1544, 1.0824, 1.9813, // w8..w11 recall / forget stability
	0.0953, 0.2975, 2.2042, 0.2407, // w12..w15
	2.9466, 0.5034, 0.6567, // w16..w18 easy bonus, short-term
}

// learningIntervals are the fixed intervals, in days, for cards left in
// Learning or Relearning.
var learningIntervals = map[domain.Rating]int{
	domain.Again: 0,
	domain.Hard:  1,
	domain.Good:  1,
	domain.Easy:  2,
}

// Params holds the parameters for the FSRS algorithm.
type Params struct {
	W                [19]float64
	DesiredRetention float64 // e.g. 0.9 for 90%
	MaximumInterval  int     // days
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		W:                DefaultWeights,
		DesiredRetention: 0.9,
		MaximumInterval:  36500,
	}
}

// Input is everything NextSchedule needs to know about a card and the response.
type Input struct {
	Interval         int
	Ease             int
	Rating           domain.Rating
	Reviews          int
	Fuzz             bool
	Difficulty       float64
	Stability        float64
	State            domain.State
	LastReview       *time.Time
	Lapses           int
	DesiredRetention float64        // zero uses the engine's retention
	Latency          *time.Duration // nil when no latency sample was taken
}

// Schedule is the result of a review.
type Schedule struct {
	Due            time.Time
	Interval       int
	Ease           int
	Difficulty     float64
	Stability      float64
	Retrievability float64
	ElapsedDays    int
	ScheduledDays  int
	State          domain.State
	Lapses         int
}

// Engine computes schedules. It is stateless apart from its parameters and
// random source, and safe for concurrent use when rng is nil.
type Engine struct {
	params Params
	rng    *rand.Rand
}

// NewEngine creates an engine. A nil rng uses the global source for fuzz.
func NewEngine(p *Params, rng *rand.Rand) *Engine {
	if p == nil {
		p = DefaultParams()
	}
	return &Engine{params: *p, rng: rng}
}

// Params returns a copy of the engine's parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Retrievability is the modeled probability of recall after elapsedDays for
// a memory of the given stability.
func Retrievability(elapsedDays, stability float64) float64 {
	if stability <= 0 || math.IsNaN(stability) {
		return 0
	}
	if elapsedDays <= 0 {
		return 1
	}
	r := 1 / (1 + Factor*elapsedDays/stability)
	return clamp(r, 0, 1)
}

// NextSchedule maps the prior schedule state and a rating to the next state.
// It never fails: degenerate inputs are clamped into range.
func (e *Engine) NextSchedule(in Input, now time.Time) Schedule {
	w := e.params.W
	rating := in.Rating
	if !rating.IsValid() {
		rating = domain.Good
	}
	retention := in.DesiredRetention
	if retention <= 0 || retention >= 1 {
		retention = e.params.DesiredRetention
	}

	elapsed := 0.0
	if in.LastReview != nil {
		elapsed = math.Max(0, now.Sub(*in.LastReview).Hours()/24)
	}

	out := Schedule{State: in.State, Lapses: in.Lapses, ElapsedDays: int(math.Floor(elapsed))}
	var stability float64

	switch in.State {
	case domain.Learning, domain.Relearning:
		out.Difficulty = e.nextDifficulty(in.Difficulty, rating)
		if rating == domain.Again {
			out.Lapses++
			stability = e.initStability(domain.Again)
		} else {
			out.State = domain.Review
			if in.Stability <= 0 {
				stability = e.initStability(domain.Again)
			} else {
				stability = in.Stability * math.Exp(w[17]*(float64(rating)-3+w[18]))
			}
		}
		out.Difficulty = e.adjustForLatency(out.Difficulty, rating, in.Latency)

	case domain.Review:
		r := Retrievability(elapsed, in.Stability)
		out.Difficulty = e.adjustForLatency(e.nextDifficulty(in.Difficulty, rating), rating, in.Latency)
		switch {
		case in.Stability <= 0:
			stability = e.initStability(rating)
			if rating == domain.Again {
				out.State = domain.Relearning
				out.Lapses++
			}
		case rating == domain.Again:
			stability = e.forgetStability(out.Difficulty, in.Stability, r)
			out.State = domain.Relearning
			out.Lapses++
		default:
			stability = e.recallStability(out.Difficulty, in.Stability, r, rating)
		}

	default: // New
		out.Difficulty = e.adjustForLatency(e.initDifficulty(rating), rating, in.Latency)
		stability = e.initStability(rating)
		if rating == domain.Again {
			out.State = domain.Learning
			out.Lapses++
		} else {
			out.State = domain.Review
		}
	}

	out.Stability = clamp(stability, minStability, maxStability)
	out.Retrievability = 1
	if in.LastReview != nil {
		out.Retrievability = Retrievability(elapsed, in.Stability)
	}

	days := e.interval(out.State, rating, out.Stability, retention)
	out.Due = now.AddDate(0, 0, days)
	if days > 2 && in.Fuzz {
		days = e.fuzz(days)
		out.Due = now.AddDate(0, 0, days)
	}
	out.Interval = max(1, days)
	out.ScheduledDays = out.Interval
	out.Ease = LegacyEase(out.Difficulty)
	return out
}

// PreviewIntervals returns the interval each rating would produce, without fuzz.
func (e *Engine) PreviewIntervals(in Input, now time.Time) map[domain.Rating]int {
	in.Fuzz = false
	in.Latency = nil
	preview := make(map[domain.Rating]int, len(domain.Ratings))
	for _, r := range domain.Ratings {
		in.Rating = r
		preview[r] = e.NextSchedule(in, now).Interval
	}
	return preview
}

// LegacyEase derives the ease score written for readers of the legacy token.
func LegacyEase(difficulty float64) int {
	return int(math.Round(250 + (5-difficulty)*30))
}

// initDifficulty returns D0(G) = w4 - e^(w5*(G-1)) + 1, clamped to [1, 10].
func (e *Engine) initDifficulty(r domain.Rating) float64 {
	w := e.params.W
	return clampDifficulty(w[4] - math.Exp(w[5]*float64(r-1)) + 1)
}

// initStability returns S0(G) = w[G-1].
func (e *Engine) initStability(r domain.Rating) float64 {
	return math.Max(minStability, e.params.W[r-1])
}

// nextDifficulty moves the difficulty by -w6*(G-3) and reverts it towards D0(Good).
func (e *Engine) nextDifficulty(d float64, r domain.Rating) float64 {
	w := e.params.W
	next := d - w[6]*(float64(r)-3)
	reverted := w[7]*e.initDifficulty(domain.Good) + (1-w[7])*next
	return clampDifficulty(reverted)
}

// adjustForLatency nudges difficulty up for slow answers and down for fast
// ones. Failed recalls are left alone.
func (e *Engine) adjustForLatency(d float64, r domain.Rating, latency *time.Duration) float64 {
	if r == domain.Again || latency == nil || *latency <= 0 {
		return d
	}
	ratio := float64(*latency) / float64(latencyReference)
	return clampDifficulty(d + latencyWeight*math.Log(ratio))
}

// recallStability is S' = S * (1 + e^w8 * (11-D) * S^-w9 * (e^((1-R)*w10) - 1) * hardPenalty * easyBonus).
func (e *Engine) recallStability(d, s, r float64, rating domain.Rating) float64 {
	w := e.params.W
	hardPenalty := 1.0
	if rating == domain.Hard {
		hardPenalty = w[15]
	}
	easyBonus := 1.0
	if rating == domain.Easy {
		easyBonus = w[16]
	}
	return s * (1 + math.Exp(w[8])*
		(11-d)*
		math.Pow(s, -w[9])*
		(math.Exp((1-r)*w[10])-1)*
		hardPenalty*easyBonus)
}

// forgetStability is S' = w11 * D^-w12 * ((S+1)^w13 - 1) * e^((1-R)*w14).
func (e *Engine) forgetStability(d, s, r float64) float64 {
	w := e.params.W
	return w[11] *
		math.Pow(d, -w[12]) *
		(math.Pow(s+1, w[13]) - 1) *
		math.Exp((1-r)*w[14])
}

func (e *Engine) interval(state domain.State, r domain.Rating, stability, retention float64) int {
	if state == domain.Learning || state == domain.Relearning {
		return learningIntervals[r]
	}
	ivl := math.Round(stability / Factor * (1/retention - 1))
	maxIvl := float64(e.params.MaximumInterval)
	if maxIvl <= 0 {
		maxIvl = maxStability
	}
	return int(clamp(ivl, 1, maxIvl))
}

// fuzz spreads an interval uniformly within ±5% so reviews do not cluster.
func (e *Engine) fuzz(days int) int {
	spread := float64(days) * fuzzRatio
	u := rand.Float64()
	if e.rng != nil {
		u = e.rng.Float64()
	}
	fuzzed := int(math.Round(float64(days) - spread + u*2*spread))
	return max(1, fuzzed)
}

func clampDifficulty(d float64) float64 {
	return clamp(d, minDifficulty, maxDifficulty)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
