package availability

import "iter"

// Candidates yields slot start minutes across windows, stepping by step from each
// window's opening. A start is offered only when the raw service fits before the
// window closes; buffers are not considered here. Starts before earliest are skipped
// (pass 0 for days other than today).
//
// The sequence is lazy and can be ranged over any number of times.
func Candidates(windows []Window, duration, step, earliest int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if duration <= 0 || step <= 0 {
			return
		}
		for _, w := range windows {
			for t := w.Start; t+duration <= w.End; t += step {
				if t < earliest {
					continue
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}
