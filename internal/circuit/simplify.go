package circuit

import "math"

// simplifyPoints reduces a section polyline with Ramer-Douglas-Peucker.
// Distances use x, y, z only. Both endpoints are always kept and an epsilon
// <= 0 leaves the section untouched.
func simplifyPoints(points [][]float64, epsilon float64) [][]float64 {
	if epsilon <= 0 || len(points) < 3 {
		return points
	}

	keep := make([]bool, len(points))
	keep[0], keep[len(points)-1] = true, true
	rdp(points, 0, len(points)-1, epsilon, keep)

	out := make([][]float64, 0, len(points))
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

func rdp(points [][]float64, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}

	maxDist, index := 0.0, -1
	for i := first + 1; i < last; i++ {
		if d := lineDistance(points[i], points[first], points[last]); d > maxDist {
			maxDist, index = d, i
		}
	}
	if index < 0 || maxDist <= epsilon {
		return
	}

	keep[index] = true
	rdp(points, first, index, epsilon, keep)
	rdp(points, index, last, epsilon, keep)
}

// lineDistance is the distance of p from the line through start and end. A
// degenerate line falls back to the distance from start.
func lineDistance(p, start, end []float64) float64 {
	a, b, x := vec3(start), vec3(end), vec3(p)
	d := [3]float64{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	w := [3]float64{a[0] - x[0], a[1] - x[1], a[2] - x[2]}

	dn := norm(d)
	if dn == 0 {
		return norm(w)
	}
	cross := [3]float64{
		d[1]*w[2] - d[2]*w[1],
		d[2]*w[0] - d[0]*w[2],
		d[0]*w[1] - d[1]*w[0],
	}
	return norm(cross) / dn
}

func vec3(p []float64) [3]float64 {
	var v [3]float64
	copy(v[:], p)
	return v
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
