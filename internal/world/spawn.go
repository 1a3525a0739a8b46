package world

import "math"

// SerializePosition packs a grid cell into a single int. It is a bijection over
// [0,width) x [0,height).
func SerializePosition(x, y, height int) int {
	return x*height + y
}

func DeserializePosition(pos, height int) (x, y int) {
	return pos / height, pos % height
}

// availableSpawnPositions lists serialized cells where an entity of the given
// radius can appear without landing near an avatar. Avatars are treated as
// squares of half-width radius+minSpawnDistance+newRadius.
//
// The returned slice is the world's scratch buffer: it is only valid until the
// next call.
func (w *World) availableSpawnPositions(newRadius int) []int {
	width, height := w.cfg.Width, w.cfg.Height
	for i := range w.taken {
		w.taken[i] = false
	}

	for _, a := range w.avatars {
		safe := a.Radius + float64(w.cfg.MinSpawnDistance) + float64(newRadius)
		minX := max(int(math.Floor(a.X-safe)), 0)
		maxX := min(int(math.Ceil(a.X+safe)), width)
		minY := max(int(math.Floor(a.Y-safe)), 0)
		maxY := min(int(math.Ceil(a.Y+safe)), height)
		for x := minX; x < maxX; x++ {
			for y := minY; y < maxY; y++ {
				w.taken[SerializePosition(x, y, height)] = true
			}
		}
	}

	positions := w.positions[:0]
	for x := newRadius; x < width-newRadius; x++ {
		for y := newRadius; y < height-newRadius; y++ {
			pos := SerializePosition(x, y, height)
			if !w.taken[pos] {
				positions = append(positions, pos)
			}
		}
	}
	w.positions = positions
	return positions
}
