package morton

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestRegionBasics(t *testing.T) {
	enc, err := NewEncoder(2, 8)
	test.That(t, err, test.ShouldBeNil)

	root := enc.Root()
	test.That(t, root.Level, test.ShouldEqual, Level(0))
	test.That(t, root.Dims(), test.ShouldEqual, 2)
	test.That(t, root.Side(), test.ShouldEqual, 256.0)
	lo, hi := root.Bounds()
	test.That(t, lo, test.ShouldResemble, []uint64{0, 0})
	test.That(t, hi, test.ShouldResemble, []uint64{255, 255})
	test.That(t, root.Center(), test.ShouldResemble, []float64{128, 128})
	_, ok := root.Parent()
	test.That(t, ok, test.ShouldBeFalse)

	children := root.Children()
	test.That(t, len(children), test.ShouldEqual, 4)
	for i, child := range children {
		test.That(t, child.ChildIndex(), test.ShouldEqual, uint64(i))
		parent, ok := child.Parent()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, parent, test.ShouldResemble, root)
	}

	// child 1 sets the x bit, child 2 the y bit
	lo, hi = children[1].Bounds()
	test.That(t, lo, test.ShouldResemble, []uint64{128, 0})
	test.That(t, hi, test.ShouldResemble, []uint64{255, 127})
	lo, hi = children[2].Bounds()
	test.That(t, lo, test.ShouldResemble, []uint64{0, 128})
	test.That(t, hi, test.ShouldResemble, []uint64{127, 255})

	cell := root
	for !cell.IsCell() {
		cell = cell.Child(3)
	}
	test.That(t, cell.Level, test.ShouldEqual, Level(8))
	lo, hi = cell.Bounds()
	test.That(t, lo, test.ShouldResemble, []uint64{255, 255})
	test.That(t, hi, test.ShouldResemble, []uint64{255, 255})
	test.That(t, cell.Center(), test.ShouldResemble, []float64{255.5, 255.5})
	test.That(t, func() { cell.Child(0) }, test.ShouldPanic)
	test.That(t, func() { root.Child(4) }, test.ShouldPanic)
}

func TestRegionPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, shape := range []struct{ dims, bits int }{{2, 8}, {3, 6}, {1, 64}, {4, 5}} {
		enc, err := NewEncoder(shape.dims, shape.bits)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 50; i++ {
			coords := make([]uint64, shape.dims)
			for j := range coords {
				coords[j] = rng.Uint64() & enc.MaxCoordinate()
			}
			code, err := enc.EncodeUint64(coords)
			test.That(t, err, test.ShouldBeNil)

			for level := Level(0); level < enc.MaxLevel(); level++ {
				region := enc.RegionOf(code, level)
				test.That(t, region.Contains(code), test.ShouldBeTrue)
				lo, hi := region.Bounds()
				test.That(t, BoxWithin(coords, coords, lo, hi), test.ShouldBeTrue)

				matches := 0
				for _, child := range region.Children() {
					if child.Contains(code) {
						matches++
						test.That(t, child, test.ShouldResemble, enc.RegionOf(code, level+1))
						test.That(t, child.ChildIndex(), test.ShouldEqual, enc.ChildIndexAt(code, level))
					}
				}
				test.That(t, matches, test.ShouldEqual, 1)
			}
			test.That(t, enc.RegionOf(code, enc.MaxLevel()).Prefix, test.ShouldEqual, code)
		}
	}
}

func TestRegionChildrenTileParent(t *testing.T) {
	enc, err := NewEncoder(3, 4)
	test.That(t, err, test.ShouldBeNil)
	parent := enc.Root().Child(5).Child(2)
	plo, phi := parent.Bounds()

	volume := 0.0
	children := parent.Children()
	for i, a := range children {
		alo, ahi := a.Bounds()
		test.That(t, BoxWithin(alo, ahi, plo, phi), test.ShouldBeTrue)
		volume += math.Pow(a.Side(), 3)
		for _, b := range children[i+1:] {
			blo, bhi := b.Bounds()
			test.That(t, BoxesOverlap(alo, ahi, blo, bhi), test.ShouldBeFalse)
		}
	}
	test.That(t, volume, test.ShouldEqual, math.Pow(parent.Side(), 3))
}

func TestRegionSphereAndBox(t *testing.T) {
	enc, err := NewEncoder(2, 8)
	test.That(t, err, test.ShouldBeNil)
	// [128,255] x [0,127]
	region := enc.Root().Child(1)

	test.That(t, region.MinRank([]uint64{200, 50}, Euclidean), test.ShouldEqual, 0.0)
	test.That(t, region.MinRank([]uint64{125, 131}, Euclidean), test.ShouldEqual, 9.0+16.0)
	test.That(t, region.MinRank([]uint64{125, 131}, Manhattan), test.ShouldEqual, 7.0)
	test.That(t, region.MinRank([]uint64{125, 131}, Chebyshev), test.ShouldEqual, 4.0)

	test.That(t, region.OverlapsSphere([]uint64{125, 131}, 5, Euclidean), test.ShouldBeTrue)
	test.That(t, region.OverlapsSphere([]uint64{125, 131}, 4.99, Euclidean), test.ShouldBeFalse)
	test.That(t, region.OverlapsSphere([]uint64{200, 50}, -1, Euclidean), test.ShouldBeFalse)

	test.That(t, region.OverlapsBox([]uint64{0, 0}, []uint64{128, 0}), test.ShouldBeTrue)
	test.That(t, region.OverlapsBox([]uint64{0, 0}, []uint64{127, 255}), test.ShouldBeFalse)
	test.That(t, region.WithinBox([]uint64{100, 0}, []uint64{255, 200}), test.ShouldBeTrue)
	test.That(t, region.WithinBox([]uint64{129, 0}, []uint64{255, 200}), test.ShouldBeFalse)
}

func TestMinRankIsLowerBound(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	enc, err := NewEncoder(3, 6)
	test.That(t, err, test.ShouldBeNil)
	for _, m := range []Metric{Euclidean, Manhattan, Chebyshev} {
		for i := 0; i < 300; i++ {
			p := []uint64{uint64(rng.Intn(64)), uint64(rng.Intn(64)), uint64(rng.Intn(64))}
			q := []uint64{uint64(rng.Intn(64)), uint64(rng.Intn(64)), uint64(rng.Intn(64))}
			code, _ := enc.EncodeUint64(q)
			for level := Level(0); level <= enc.MaxLevel(); level++ {
				region := enc.RegionOf(code, level)
				test.That(t, region.MinRank(p, m), test.ShouldBeLessThanOrEqualTo, Rank(p, q, m))
			}
		}
	}
}

func TestMetrics(t *testing.T) {
	a := []uint64{1, 5, 2}
	b := []uint64{4, 1, 2}
	test.That(t, Rank(a, b, Euclidean), test.ShouldEqual, 25.0)
	test.That(t, Euclidean.Distance(25), test.ShouldEqual, 5.0)
	test.That(t, Euclidean.RankOf(5), test.ShouldEqual, 25.0)
	test.That(t, Rank(a, b, Manhattan), test.ShouldEqual, 7.0)
	test.That(t, Rank(a, b, Chebyshev), test.ShouldEqual, 4.0)

	for name, want := range map[string]Metric{"": Euclidean, "Euclidean": Euclidean, "manhattan": Manhattan, "chebyshev": Chebyshev} {
		m, err := MetricByName(name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m, test.ShouldEqual, want)
	}
	_, err := MetricByName("cosine")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRegionNext(t *testing.T) {
	enc, err := NewEncoder(3, 4)
	test.That(t, err, test.ShouldBeNil)

	_, ok := enc.Root().Next()
	test.That(t, ok, test.ShouldBeFalse)

	parent := enc.Root().Child(5)
	children := parent.Children()
	r := children[0]
	for i := 1; i < len(children); i++ {
		next, ok := r.Next()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, next, test.ShouldResemble, children[i])
		p, _ := next.Parent()
		test.That(t, p, test.ShouldResemble, parent)
		r = next
	}
	test.That(t, r.ChildIndex(), test.ShouldEqual, uint64(7))
	_, ok = r.Next()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestExactRanks(t *testing.T) {
	test.That(t, ExactRanks(Euclidean, 3, 21), test.ShouldBeTrue)
	test.That(t, ExactRanks(Euclidean, 2, 26), test.ShouldBeTrue)
	test.That(t, ExactRanks(Euclidean, 2, 27), test.ShouldBeFalse)
	test.That(t, ExactRanks(Euclidean, 2, 32), test.ShouldBeFalse)
	test.That(t, ExactRanks(Chebyshev, 1, 53), test.ShouldBeTrue)
	test.That(t, ExactRanks(Chebyshev, 1, 54), test.ShouldBeFalse)
	test.That(t, ExactRanks(Manhattan, 2, 32), test.ShouldBeTrue)
	test.That(t, ExactRanks(Manhattan, 1, 64), test.ShouldBeFalse)
}
