package anomaly

import "github.com/shopspring/decimal"

// rollingSum keeps the sum of the last size values pushed.
type rollingSum struct {
	buf  []decimal.Decimal
	next int
	n    int
	sum  decimal.Decimal
}

func newRollingSum(size int) *rollingSum {
	return &rollingSum{buf: make([]decimal.Decimal, size), sum: decimal.Zero}
}

// push adds v, evicting the oldest value once the window is full, and reports
// whether the window is full after the push.
func (r *rollingSum) push(v decimal.Decimal) bool {
	if r.n == len(r.buf) {
		r.sum = r.sum.Sub(r.buf[r.next])
	} else {
		r.n++
	}
	r.buf[r.next] = v
	r.sum = r.sum.Add(v)
	r.next = (r.next + 1) % len(r.buf)
	return r.n == len(r.buf)
}

func (r *rollingSum) total() decimal.Decimal { return r.sum }

func (r *rollingSum) size() int { return len(r.buf) }
