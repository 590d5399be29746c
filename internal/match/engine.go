package match

import (
	"unicode/utf8"

	"github.com/podonamu/sori/internal/bible"
)

// Relaxation selects which single axis of threshold relaxation is active.
// The two axes must never be combined in one deployment profile; compounding
// them raises the false-accept rate past what was validated.
type Relaxation string

const (
	// RelaxDifficulty relaxes the similarity threshold for verses the
	// classifier flags, keeping the default length ratio.
	RelaxDifficulty Relaxation = "difficulty"

	// RelaxPlatform relaxes both the threshold and the length ratio
	// uniformly, for constrained recogniser environments (e.g. iOS Safari).
	RelaxPlatform Relaxation = "platform"
)

// IsValid reports whether r is a recognised relaxation policy.
func (r Relaxation) IsValid() bool {
	return r == RelaxDifficulty || r == RelaxPlatform
}

// Default tunables. These are the values the web app shipped with after the
// threshold was lowered from 70 to improve recognition of hard names.
const (
	DefaultLookbackFactor     = 1.8
	DefaultThreshold          = 60
	DefaultRelaxedThreshold   = 50
	DefaultMinLengthRatio     = 0.9
	DefaultRelaxedLengthRatio = 0.8
	DefaultAbsoluteAllowance  = 5
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithLookbackFactor sets the transcript suffix window size as a multiple of
// the normalised target length. Must exceed 1.0 so a verse read with filler
// words still fits; too large re-includes the previous verse's tail.
func WithLookbackFactor(f float64) Option {
	return func(e *Engine) { e.lookbackFactor = f }
}

// WithThresholds sets the default and relaxed similarity thresholds (0–100).
func WithThresholds(def, relaxed int) Option {
	return func(e *Engine) {
		e.threshold = def
		e.relaxedThreshold = relaxed
	}
}

// WithLengthRatios sets the default and relaxed minimum-length ratios in
// (0, 1]. The compared suffix must cover at least this share of the target
// unless the absolute allowance applies.
func WithLengthRatios(def, relaxed float64) Option {
	return func(e *Engine) {
		e.minLengthRatio = def
		e.relaxedLengthRatio = relaxed
	}
}

// WithAbsoluteAllowance sets the absolute character shortfall (in runes)
// tolerated regardless of the ratio rule. Protects short verses where the
// recogniser plausibly drops a few trailing characters.
func WithAbsoluteAllowance(n int) Option {
	return func(e *Engine) { e.absoluteAllowance = n }
}

// WithRelaxation selects the active relaxation policy. Default: difficulty.
func WithRelaxation(r Relaxation) Option {
	return func(e *Engine) { e.relaxation = r }
}

// WithClassifier sets the difficulty classifier consulted under the
// difficulty relaxation policy.
func WithClassifier(c *Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// Engine decides whether a live transcript buffer matches a target verse.
// It is stateless across invocations and safe for concurrent use: each
// evaluation depends only on its arguments and the fixed configuration.
type Engine struct {
	lookbackFactor     float64
	threshold          int
	relaxedThreshold   int
	minLengthRatio     float64
	relaxedLengthRatio float64
	absoluteAllowance  int
	relaxation         Relaxation
	classifier         *Classifier
}

// NewEngine creates an Engine with the default tunables, overridden by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		lookbackFactor:     DefaultLookbackFactor,
		threshold:          DefaultThreshold,
		relaxedThreshold:   DefaultRelaxedThreshold,
		minLengthRatio:     DefaultMinLengthRatio,
		relaxedLengthRatio: DefaultRelaxedLengthRatio,
		absoluteAllowance:  DefaultAbsoluteAllowance,
		relaxation:         RelaxDifficulty,
		classifier:         NewClassifier(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result carries the detail of one evaluation, for logging and metrics.
type Result struct {
	// Similarity is the 0–100 score between the target and the window.
	Similarity int

	// Threshold is the similarity threshold that applied to this verse.
	Threshold int

	// TargetLen and WindowLen are normalised lengths in runes.
	TargetLen int
	WindowLen int

	// Difficult is set when the difficulty policy relaxed the threshold.
	Difficult bool

	// Matched reports whether the accept rule passed.
	Matched bool
}

// Evaluate compares the live transcript buffer against target. It returns the
// evaluation detail and whether the verse counts as read.
//
// A nil target, an empty buffer, or a target that normalises to the empty
// string is a silent no-op: no match, never an error. The caller re-invokes
// Evaluate on the next transcript update; rejected attempts are not tracked.
func (e *Engine) Evaluate(target *bible.Verse, buffer string) Result {
	if target == nil || buffer == "" {
		return Result{}
	}

	normTarget := Normalize(target.Text)
	targetLen := utf8.RuneCountInString(normTarget)
	if targetLen == 0 {
		return Result{}
	}
	normBuffer := Normalize(buffer)

	// Only the tail of the transcript is relevant: the buffer accumulates
	// everything spoken since listening began, including the previous
	// verse's trailing content.
	window := tailRunes(normBuffer, int(float64(targetLen)*e.lookbackFactor))
	windowLen := utf8.RuneCountInString(window)

	threshold, ratio, difficult := e.applicableLimits(target.Text)
	sim := Similarity(normTarget, window)

	sufficientByRatio := float64(windowLen) >= ratio*float64(targetLen)
	sufficientByAbsolute := targetLen-windowLen <= e.absoluteAllowance && windowLen > 0

	return Result{
		Similarity: sim,
		Threshold:  threshold,
		TargetLen:  targetLen,
		WindowLen:  windowLen,
		Difficult:  difficult,
		Matched:    sim >= threshold && (sufficientByRatio || sufficientByAbsolute),
	}
}

// applicableLimits selects the similarity threshold and minimum-length ratio
// for the active relaxation policy.
func (e *Engine) applicableLimits(verseText string) (threshold int, ratio float64, difficult bool) {
	switch e.relaxation {
	case RelaxPlatform:
		return e.relaxedThreshold, e.relaxedLengthRatio, false
	default:
		if e.classifier != nil && e.classifier.IsDifficult(verseText) {
			return e.relaxedThreshold, e.minLengthRatio, true
		}
		return e.threshold, e.minLengthRatio, false
	}
}

// tailRunes returns the suffix of s containing at most n runes.
func tailRunes(s string, n int) string {
	total := utf8.RuneCountInString(s)
	if total <= n {
		return s
	}
	skip := total - n
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return ""
}
