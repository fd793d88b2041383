package parallel

// Band is the half-open row range [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Bands splits rows [y0, y1) into at most n bands of at least minRows
// rows each. The bands are contiguous and in order.
func Bands(y0, y1, n, minRows int) []Band {
	rows := y1 - y0
	if rows <= 0 {
		return nil
	}
	n = max(min(n, rows/max(minRows, 1)), 1)
	out := make([]Band, 0, n)
	step, extra := rows/n, rows%n
	for i := range n {
		h := step
		if i < extra {
			h++
		}
		out = append(out, Band{y0, y0 + h})
		y0 += h
	}
	return out
}
