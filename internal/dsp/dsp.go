// Package dsp implements playback-rate processing over a decoded sample
// buffer. Two algorithms are provided: a tape-style resampler that couples
// pitch to speed, and a WSOLA time-stretcher that keeps pitch constant while
// changing duration. A semitone pitch control is layered on top of the
// stretcher by resampling its output.
package dsp

import (
	"math"
)

// Rate and pitch bounds. Values outside these ranges are clamped, never
// rejected: both controls have natural saturating semantics.
const (
	MinRate  = 0.25
	MaxRate  = 4.0
	MinPitch = -12.0
	MaxPitch = 12.0
)

// WSOLA geometry at the fixed 44.1kHz output rate: a ~46ms analysis window
// with 50% overlap-add and a ~12ms similarity search to either side. The
// output hop is fixed; the input hop scales with the rate factor.
const (
	windowFrames = 2048
	hopFrames    = windowFrames / 2
	searchFrames = 512
)

// Mode selects the rate algorithm.
type Mode int

const (
	// ModeStretch preserves pitch across rate changes (WSOLA).
	ModeStretch Mode = iota
	// ModeTape couples pitch to rate, like changing tape speed.
	ModeTape
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStretch:
		return "stretch"
	case ModeTape:
		return "tape"
	default:
		return "unknown"
	}
}

// ParseMode maps a wire name to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "stretch":
		return ModeStretch, true
	case "tape":
		return ModeTape, true
	default:
		return ModeStretch, false
	}
}

// ClampRate saturates a rate factor to the supported range.
func ClampRate(r float64) float64 {
	return math.Min(MaxRate, math.Max(MinRate, r))
}

// ClampPitch saturates a semitone offset to the supported range.
func ClampPitch(p float64) float64 {
	return math.Min(MaxPitch, math.Max(MinPitch, p))
}

// Processor transforms source frames into output frames at the configured
// rate and mode. It is a pure function over its buffers plus small internal
// caches (overlap carry, correlation reference, pending resample output);
// callers provide their own synchronization.
type Processor struct {
	samples  []float32
	mono     []float32 // per-frame mixdown used for correlation
	channels int
	frames   int

	mode  Mode
	rate  float64
	pitch float64 // semitones

	// Input cursor in frames. Fractional in tape mode; the nominal analysis
	// position in stretch mode.
	pos float64

	// Stretch state, flushed on mode switch and seek.
	fadeIn  []float64 // first half of the raised-cosine window
	fadeOut []float64 // second half
	tail    []float32 // faded-out second half of the previous window, interleaved
	ref     []float32 // mono continuation reference for the similarity search
	primed  bool
	done    bool

	// Pitch resampler state: stretched output pending consumption.
	pending    []float32
	pendingPos float64 // fractional read position in frames
}

// NewProcessor creates an idle processor at rate 1.0 in stretch mode.
func NewProcessor() *Processor {
	p := &Processor{
		mode: ModeStretch,
		rate: 1.0,
	}
	p.fadeIn = make([]float64, hopFrames)
	p.fadeOut = make([]float64, hopFrames)
	for i := 0; i < hopFrames; i++ {
		// Hann halves; at 50% overlap they sum to one.
		w := 0.5 - 0.5*math.Cos(math.Pi*float64(i)/float64(hopFrames))
		p.fadeIn[i] = w
		p.fadeOut[i] = 1.0 - w
	}
	return p
}

// SetSource points the processor at a new decoded buffer and rewinds it.
func (p *Processor) SetSource(samples []float32, channels int) {
	p.samples = samples
	p.channels = channels
	if channels > 0 {
		p.frames = len(samples) / channels
	} else {
		p.frames = 0
	}

	p.mono = make([]float32, p.frames)
	for f := 0; f < p.frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[f*channels+c]
		}
		p.mono[f] = sum / float32(channels)
	}

	p.pos = 0
	p.Flush()
}

// SetRate saturates and applies a new rate factor, returning the value in
// effect. Rate changes do not flush stretch history; the next hop simply
// consumes input at the new pace.
func (p *Processor) SetRate(r float64) float64 {
	p.rate = ClampRate(r)
	return p.rate
}

// Rate returns the rate factor in effect.
func (p *Processor) Rate() float64 { return p.rate }

// SetMode switches the rate algorithm. Switching flushes all stretch history
// so stale correlation state cannot splice into the new mode's output.
func (p *Processor) SetMode(m Mode) {
	if m == p.mode {
		return
	}
	p.mode = m
	p.Flush()
}

// Mode returns the active algorithm.
func (p *Processor) Mode() Mode { return p.mode }

// SetPitch saturates and applies a semitone offset, returning the value in
// effect. Pitch applies in stretch mode only; tape mode couples pitch to
// rate by definition.
func (p *Processor) SetPitch(semitones float64) float64 {
	p.pitch = ClampPitch(semitones)
	return p.pitch
}

// Pitch returns the semitone offset in effect.
func (p *Processor) Pitch() float64 { return p.pitch }

// Pos returns the input cursor in frames.
func (p *Processor) Pos() int {
	return int(math.Round(p.pos))
}

// Seek moves the input cursor, clamping to the buffer, and flushes stretch
// history so the next output does not correlate against pre-seek samples.
func (p *Processor) Seek(frame int) {
	if frame < 0 {
		frame = 0
	}
	if frame > p.frames {
		frame = p.frames
	}
	p.pos = float64(frame)
	p.Flush()
}

// Flush discards all internal history: overlap carry, correlation reference
// and pending pitch-resampler output.
func (p *Processor) Flush() {
	p.tail = nil
	p.ref = nil
	p.primed = false
	p.done = false
	p.pending = p.pending[:0]
	p.pendingPos = 0
}

// Next fills dst with processed interleaved frames and reports how many
// frames were written. eos is true once the source is exhausted; a final
// call may return both a partial count and eos.
func (p *Processor) Next(dst []float32) (int, bool) {
	if p.channels == 0 || p.frames == 0 {
		return 0, true
	}
	if p.mode == ModeTape {
		return p.nextTape(dst)
	}
	return p.nextStretch(dst)
}

// nextTape resamples the source directly: output frame i reads the input at
// pos + i*rate with linear interpolation. O(1) extra memory.
func (p *Processor) nextTape(dst []float32) (int, bool) {
	ch := p.channels
	want := len(dst) / ch

	n := 0
	for ; n < want; n++ {
		if p.pos >= float64(p.frames) {
			return n, true
		}
		i0 := int(p.pos)
		i1 := i0 + 1
		if i1 >= p.frames {
			i1 = p.frames - 1
		}
		frac := float32(p.pos - float64(i0))
		for c := 0; c < ch; c++ {
			s0 := p.samples[i0*ch+c]
			s1 := p.samples[i1*ch+c]
			dst[n*ch+c] = s0 + (s1-s0)*frac
		}
		p.pos += p.rate
	}
	return n, p.pos >= float64(p.frames)
}

// nextStretch produces pitch-preserved output. WSOLA hops are synthesized
// into a pending buffer which is then consumed directly (pitch = 0) or
// through a linear resampler (pitch shift as stretch-then-resample).
func (p *Processor) nextStretch(dst []float32) (int, bool) {
	ch := p.channels
	want := len(dst) / ch
	step := math.Pow(2, p.pitch/12)

	n := 0
	for n < want {
		// Frames still readable from the pending buffer.
		avail := float64(len(p.pending)/ch) - p.pendingPos - 1
		if avail < step {
			if p.done {
				// Drain the very last pending frame, then stop.
				if int(p.pendingPos) < len(p.pending)/ch {
					p.readPending(dst[n*ch:(n+1)*ch], step)
					n++
					continue
				}
				return n, true
			}
			p.synthesizeHop()
			continue
		}
		p.readPending(dst[n*ch:(n+1)*ch], step)
		n++
	}
	return n, false
}

// readPending emits one frame from the pending buffer at the pitch step,
// compacting consumed frames once they can no longer be interpolated into.
func (p *Processor) readPending(out []float32, step float64) {
	ch := p.channels
	i0 := int(p.pendingPos)
	i1 := i0 + 1
	last := len(p.pending)/ch - 1
	if i1 > last {
		i1 = last
	}
	frac := float32(p.pendingPos - float64(i0))
	for c := 0; c < ch; c++ {
		s0 := p.pending[i0*ch+c]
		s1 := p.pending[i1*ch+c]
		out[c] = s0 + (s1-s0)*frac
	}
	p.pendingPos += step

	if drop := int(p.pendingPos) - 1; drop > 0 && drop <= last {
		p.pending = p.pending[drop*ch:]
		p.pendingPos -= float64(drop)
	}
}

// synthesizeHop runs one WSOLA step: pick the candidate analysis frame that
// best continues the previous one, window it, overlap-add one hop of output
// into the pending buffer and advance the input cursor by hop*stretch.
func (p *Processor) synthesizeHop() {
	ch := p.channels

	// Pitch shift consumes input faster or slower so that the resampler
	// brings duration back to the plain rate factor.
	stretch := p.rate / math.Pow(2, p.pitch/12)
	stretch = ClampRate(stretch)

	start := int(math.Round(p.pos))
	if start+windowFrames > p.frames {
		p.finalHop(start)
		return
	}

	if p.primed {
		start = p.bestCandidate(start)
	}

	// Overlap-add one hop: previous faded-out tail plus this window's
	// faded-in first half.
	out := make([]float32, hopFrames*ch)
	for i := 0; i < hopFrames; i++ {
		for c := 0; c < ch; c++ {
			v := float32(p.fadeIn[i]) * p.samples[(start+i)*ch+c]
			if p.tail != nil {
				v += p.tail[i*ch+c]
			}
			out[i*ch+c] = v
		}
	}
	p.pending = append(p.pending, out...)

	// Second half of the window becomes the next tail.
	if p.tail == nil {
		p.tail = make([]float32, hopFrames*ch)
	}
	for i := 0; i < hopFrames; i++ {
		for c := 0; c < ch; c++ {
			p.tail[i*ch+c] = float32(p.fadeOut[i]) * p.samples[(start+hopFrames+i)*ch+c]
		}
	}

	// The natural continuation of the chosen frame is the reference the next
	// search aligns against.
	if p.ref == nil {
		p.ref = make([]float32, hopFrames)
	}
	copy(p.ref, p.mono[start+hopFrames:start+windowFrames])

	p.primed = true
	p.pos += float64(hopFrames) * stretch
}

// bestCandidate searches around the nominal position for the input offset
// whose head best matches the stored continuation reference, by normalized
// cross-correlation on the mono mixdown.
func (p *Processor) bestCandidate(nominal int) int {
	lo := nominal - searchFrames
	if lo < 0 {
		lo = 0
	}
	hi := nominal + searchFrames
	if hi+windowFrames > p.frames {
		hi = p.frames - windowFrames
	}
	if hi < lo {
		return lo
	}

	best := nominal
	bestScore := math.Inf(-1)
	for cand := lo; cand <= hi; cand++ {
		var dot, energy float64
		for i := 0; i < hopFrames; i++ {
			s := float64(p.mono[cand+i])
			dot += s * float64(p.ref[i])
			energy += s * s
		}
		score := dot
		if energy > 0 {
			score = dot / math.Sqrt(energy)
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

// finalHop emits what remains when less than one analysis window is left:
// the stored tail overlapped with the available input, then any raw
// remainder, and marks the stream done. Nothing past the buffer is read.
func (p *Processor) finalHop(start int) {
	ch := p.channels
	rem := p.frames - start
	if rem < 0 {
		rem = 0
	}

	overlap := rem
	if overlap > hopFrames {
		overlap = hopFrames
	}

	out := make([]float32, 0, rem*ch+hopFrames*ch)
	for i := 0; i < overlap; i++ {
		for c := 0; c < ch; c++ {
			v := float32(p.fadeIn[i]) * p.samples[(start+i)*ch+c]
			if p.tail != nil {
				v += p.tail[i*ch+c]
			}
			out = append(out, v)
		}
	}
	// Remainder beyond one hop plays out unwindowed.
	for i := overlap; i < rem; i++ {
		for c := 0; c < ch; c++ {
			out = append(out, p.samples[(start+i)*ch+c])
		}
	}
	// If the input ran out before the tail did, let the tail ring out.
	if p.tail != nil {
		for i := overlap; i < hopFrames; i++ {
			for c := 0; c < ch; c++ {
				out = append(out, p.tail[i*ch+c])
			}
		}
	}

	p.pending = append(p.pending, out...)
	p.tail = nil
	p.pos = float64(p.frames)
	p.done = true
}
