package detection

import (
	"container/heap"
	"math"
	"sort"

	"github.com/ironsheep/organoid-counter/internal/imaging"
)

// MaximaTolerance is the prominence, in pixels of distance, a distance-map
// peak needs over the saddle to its nearest higher peak before it seeds its
// own basin. Shallower peaks belong to the higher one, so small concavities
// on a single organoid do not split it.
const MaximaTolerance = 0.5

// Segment fills holes and, when watershed is true, splits touching regions.
// The input mask is not modified.
func Segment(mask *imaging.BinaryMask, watershed bool) *imaging.BinaryMask {
	filled := FillHoles(mask)
	if !watershed {
		return filled
	}
	return Watershed(filled)
}

// FillHoles returns a copy of mask in which every background pixel that
// cannot reach the image border along a 4-connected background path is
// foreground. 4-connected background pairs with 8-connected foreground, so a
// diagonal gap in an outline does not leak.
func FillHoles(mask *imaging.BinaryMask) *imaging.BinaryMask {
	w, h := mask.Width, mask.Height
	out := mask.Clone()
	outside := make([]bool, w*h)

	stack := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		i := y*w + x
		if !mask.Pix[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	for i, v := range mask.Pix {
		if !v && !outside[i] {
			out.Pix[i] = true
		}
	}
	return out
}

// DistanceMap returns, for every foreground pixel, the Euclidean distance to
// the nearest background pixel (0 for background). Pixels outside the image
// do not count as background. When the mask has no background at all every
// value is +Inf.
func DistanceMap(mask *imaging.BinaryMask) []float64 {
	w, h := mask.Width, mask.Height
	const far = 1e20

	sq := make([]float64, w*h)
	for i, v := range mask.Pix {
		if v {
			sq[i] = far
		}
	}

	n := w
	if h > n {
		n = h
	}
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	// Columns, then rows, of the separable squared transform
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = sq[y*w+x]
		}
		distance1D(f[:h], d[:h], v, z)
		for y := 0; y < h; y++ {
			sq[y*w+x] = d[y]
		}
	}
	for y := 0; y < h; y++ {
		copy(f[:w], sq[y*w:(y+1)*w])
		distance1D(f[:w], d[:w], v, z)
		copy(sq[y*w:(y+1)*w], d[:w])
	}

	dist := make([]float64, w*h)
	for i, s := range sq {
		if s >= far/2 {
			dist[i] = math.Inf(1)
		} else {
			dist[i] = math.Sqrt(s)
		}
	}
	return dist
}

// distance1D is the lower-envelope-of-parabolas pass of the
// Felzenszwalb-Huttenlocher squared distance transform.
func distance1D(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		fq := f[q] + float64(q*q)
		s := (fq - (f[v[k]] + float64(v[k]*v[k]))) / float64(2*q-2*v[k])
		for s <= z[k] {
			k--
			s = (fq - (f[v[k]] + float64(v[k]*v[k]))) / float64(2*q-2*v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

// Watershed splits touching foreground blobs along the narrowest necks
// between them.
//
// Seeds are the distance-map maxima that stand at least MaximaTolerance
// above the path to any higher maximum. Basins are flooded from the seeds in
// order of decreasing distance (ties by raster index), and a pixel reached
// by two basins becomes background. No two basins remain 8-adjacent, so
// they label as separate regions.
func Watershed(mask *imaging.BinaryMask) *imaging.BinaryMask {
	w, h := mask.Width, mask.Height
	out := mask.Clone()

	bg := len(mask.Pix) - mask.Count()
	if bg == 0 || bg == len(mask.Pix) {
		return out
	}

	dist := DistanceMap(mask)
	labels := findSeeds(mask, dist)

	const dam = -1
	queued := make([]bool, w*h)
	pq := &floodQueue{}
	var seq int
	enqueue := func(i int) {
		if !mask.Pix[i] || labels[i] != 0 || queued[i] {
			return
		}
		queued[i] = true
		heap.Push(pq, floodItem{index: i, dist: dist[i], seq: seq})
		seq++
	}

	for i := range labels {
		if labels[i] > 0 {
			forEachNeighbor8(i, w, h, enqueue)
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(floodItem)
		i := item.index

		basin := 0
		conflict := false
		forEachNeighbor8(i, w, h, func(j int) {
			l := labels[j]
			if l <= 0 {
				return
			}
			if basin == 0 {
				basin = l
			} else if l != basin {
				conflict = true
			}
		})

		if conflict {
			labels[i] = dam
			out.Pix[i] = false
			continue
		}
		labels[i] = basin
		forEachNeighbor8(i, w, h, enqueue)
	}

	return out
}

// findSeeds labels the prominent maxima of dist. Each accepted seed claims
// every pixel connected to it at or above its height minus the tolerance.
func findSeeds(mask *imaging.BinaryMask, dist []float64) []int {
	w, h := mask.Width, mask.Height
	labels := make([]int, w*h)

	candidates := make([]int, 0)
	for i, fg := range mask.Pix {
		if !fg {
			continue
		}
		isMax := true
		forEachNeighbor8(i, w, h, func(j int) {
			if dist[j] > dist[i] {
				isMax = false
			}
		})
		if isMax {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return dist[candidates[a]] > dist[candidates[b]]
	})

	visited := make([]int, w*h) // stamp of the last search that reached a pixel
	stamp := 0
	next := 0

	for _, c := range candidates {
		if labels[c] != 0 {
			continue
		}
		stamp++
		v := dist[c]
		floor := v - MaximaTolerance

		region := []int{c}
		visited[c] = stamp
		accepted := true
		for k := 0; k < len(region) && accepted; k++ {
			forEachNeighbor8(region[k], w, h, func(j int) {
				if !accepted || visited[j] == stamp || !mask.Pix[j] || dist[j] < floor {
					return
				}
				if dist[j] > v || labels[j] != 0 {
					accepted = false
					return
				}
				visited[j] = stamp
				region = append(region, j)
			})
		}
		if !accepted {
			continue
		}

		next++
		for _, j := range region {
			labels[j] = next
		}
	}
	return labels
}

func forEachNeighbor8(i, w, h int, fn func(j int)) {
	x, y := i%w, i/w
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= h {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
				continue
			}
			fn(ny*w + nx)
		}
	}
}

type floodItem struct {
	index int
	dist  float64
	seq   int
}

// floodQueue pops the highest distance first, then the earliest queued.
type floodQueue []floodItem

func (q floodQueue) Len() int { return len(q) }
func (q floodQueue) Less(a, b int) bool {
	if q[a].dist != q[b].dist {
		return q[a].dist > q[b].dist
	}
	return q[a].seq < q[b].seq
}
func (q floodQueue) Swap(a, b int)       { q[a], q[b] = q[b], q[a] }
func (q *floodQueue) Push(x interface{}) { *q = append(*q, x.(floodItem)) }
func (q *floodQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
