package pointcloud

import (
	"bytes"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPCD(t *testing.T) {
	cloud := newTestCloud(t, 12, 4, 0)
	test.That(t, cloud.Set(NewVector(-1, -2, 5), NewColoredData(color.NRGBA{255, 1, 2, 255})), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(58.2, 12, 0), NewColoredData(color.NRGBA{10, 20, 30, 255})), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(7, 6, 1), NewColoredData(color.NRGBA{0, 0, 255, 255})), test.ShouldBeNil)

	for _, tc := range []struct {
		name string
		typ  PCDType
	}{
		{"ascii", PCDAscii},
		{"binary", PCDBinary},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			test.That(t, ToPCD(cloud, &buf, tc.typ), test.ShouldBeNil)
			if tc.typ == PCDAscii {
				gotPCD := buf.String()
				test.That(t, gotPCD, test.ShouldContainSubstring, "FIELDS x y z rgb\n")
				test.That(t, gotPCD, test.ShouldContainSubstring, "WIDTH 3\n")
				test.That(t, gotPCD, test.ShouldContainSubstring, "POINTS 3\n")
				test.That(t, gotPCD, test.ShouldContainSubstring, "-0.001000 -0.002000 0.005000 16711938\n")
			}

			cloud2, err := ReadPCD(&buf, ReadOptions{}, golog.NewTestLogger(t))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, cloud2.Size(), test.ShouldEqual, 3)
			test.That(t, cloud2.MetaData().HasColor, test.ShouldBeTrue)

			type colored struct {
				p       r3.Vector
				r, g, b uint8
			}
			var got []colored
			cloud2.Iterate(0, 0, func(p r3.Vector, d Data) bool {
				r, g, b := d.RGB255()
				got = append(got, colored{p, r, g, b})
				return true
			})
			test.That(t, len(got), test.ShouldEqual, 3)
			for _, c := range got {
				switch {
				case c.p.X < 0:
					test.That(t, c.p.X, test.ShouldAlmostEqual, -1)
					test.That(t, c.p.Y, test.ShouldAlmostEqual, -2)
					test.That(t, c.p.Z, test.ShouldAlmostEqual, 5)
					test.That(t, []uint8{c.r, c.g, c.b}, test.ShouldResemble, []uint8{255, 1, 2})
				case c.p.X > 50:
					test.That(t, c.p.X, test.ShouldAlmostEqual, 58.2)
					test.That(t, []uint8{c.r, c.g, c.b}, test.ShouldResemble, []uint8{10, 20, 30})
				default:
					test.That(t, c.p.X, test.ShouldAlmostEqual, 7)
					test.That(t, []uint8{c.r, c.g, c.b}, test.ShouldResemble, []uint8{0, 0, 255})
				}
			}

			nearest, err := cloud2.Nearest(NewVector(6, 6, 1), 1)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, nearest[0].P.X, test.ShouldAlmostEqual, 7)
		})
	}

	t.Run("compressed", func(t *testing.T) {
		var buf bytes.Buffer
		err := ToPCD(cloud, &buf, PCDCompressed)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "not yet implemented")
	})
}

func TestPCDNoColor(t *testing.T) {
	cloud := newTestCloud(t, 12, 4, 0)
	test.That(t, cloud.Set(NewVector(-1, -2, 5), NewBasicData()), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(3, 2, 1), NewBasicData()), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, ToPCD(cloud, &buf, PCDBinary), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z\n")

	cloud2, err := ReadPCD(&buf, ReadOptions{Bits: 8, Fanout: 1}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud2.Size(), test.ShouldEqual, 2)
	test.That(t, cloud2.MetaData().HasColor, test.ShouldBeFalse)
	test.That(t, cloud2.Quantizer().Encoder().Bits(), test.ShouldEqual, 8)
}

func TestReadPCDAsciiLogsDuplicates(t *testing.T) {
	pcd := `# .PCD v0.7 - Point Cloud Data file format
VERSION 0.7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
0.001 0.002 0.003
0.001 0.002 0.003
-0.5 0.25 1
`
	logger, logs := golog.NewObservedTestLogger(t)
	cloud, err := ReadPCD(strings.NewReader(pcd), ReadOptions{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("pcd points shared positions").Len(), test.ShouldEqual, 1)

	_, found := cloud.At(-500, 250, 1000)
	test.That(t, found, test.ShouldBeTrue)
}

func TestReadPCDSkipsNonFinite(t *testing.T) {
	pcd := `VERSION .7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 4
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 4
DATA ascii
nan nan nan
0.25 0.5 1
inf 0 0
-0.5 0.25 1
`
	logger, logs := golog.NewObservedTestLogger(t)
	cloud, err := ReadPCD(strings.NewReader(pcd), ReadOptions{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("skipping non finite pcd points").Len(), test.ShouldEqual, 1)

	_, found := cloud.At(250, 500, 1000)
	test.That(t, found, test.ShouldBeTrue)
	_, found = cloud.At(-500, 250, 1000)
	test.That(t, found, test.ShouldBeTrue)
}

func TestReadPCDErrors(t *testing.T) {
	header := func(fields, size, typ, count, data string, points int) string {
		var sb strings.Builder
		sb.WriteString("VERSION .7\n")
		sb.WriteString("FIELDS " + fields + "\n")
		sb.WriteString("SIZE " + size + "\n")
		sb.WriteString("TYPE " + typ + "\n")
		sb.WriteString("COUNT " + count + "\n")
		sb.WriteString("WIDTH 2\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\n")
		if points == 2 {
			sb.WriteString("POINTS 2\n")
		} else {
			sb.WriteString("POINTS 3\n")
		}
		sb.WriteString("DATA " + data + "\n")
		return sb.String()
	}

	for _, tc := range []struct {
		name, pcd, errContains string
	}{
		{"version", "VERSION .6\n", "unsupported pcd version"},
		{"fields", header("x y z normal_x", "4 4 4 4", "F F F F", "1 1 1 1", "ascii", 2), "unsupported pcd fields"},
		{"size", header("x y z", "4 4 8", "F F F", "1 1 1", "ascii", 2), "invalid SIZE field"},
		{"type", header("x y z", "4 4 4", "F F X", "1 1 1", "ascii", 2), "invalid TYPE field"},
		{"count", header("x y z", "4 4 4", "F F F", "1 1 2", "ascii", 2), "unsupported COUNT field"},
		{"points", header("x y z", "4 4 4", "F F F", "1 1 1", "ascii", 3), "does not match WIDTH*HEIGHT"},
		{"compressed", header("x y z", "4 4 4", "F F F", "1 1 1", "binary_compressed", 2), "compressed pcd not yet supported"},
		{"order", "FIELDS x y z\n", "supposed to start with VERSION"},
		{"truncated header", "VERSION .7\nFIELDS x y z\n", "error reading header line"},
		{"short ascii", header("x y z", "4 4 4", "F F F", "1 1 1", "ascii", 2) + "1 2 3\n", "error reading point 1"},
		{"bad ascii field", header("x y z", "4 4 4", "F F F", "1 1 1", "ascii", 2) + "1 2 3\n1 two 3\n", "invalid point 1"},
		{"missing ascii field", header("x y z", "4 4 4", "F F F", "1 1 1", "ascii", 2) + "1 2\n", "unexpected number of fields"},
		{"short binary", header("x y z", "4 4 4", "F F F", "1 1 1", "binary", 2) + "\x00\x00\x00\x00", "error reading point 0"},
		{
			"oversized points",
			"VERSION .7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\nWIDTH 4611686018427387904\nHEIGHT 1\n" +
				"VIEWPOINT 0 0 0 1 0 0 0\nPOINTS 4611686018427387904\nDATA ascii\n1 2 3\n",
			"error reading point 1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(tc.pcd), ReadOptions{}, golog.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errContains)
		})
	}
}

func TestPCDFile(t *testing.T) {
	cloud := newTestCloud(t, 12, 4, 0)
	test.That(t, cloud.Set(NewVector(1, 2, 3), NewBasicData()), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(-4, 5, 6), NewBasicData()), test.ShouldBeNil)

	fn := filepath.Join(t.TempDir(), "cloud.pcd")
	test.That(t, WriteToPCDFile(cloud, fn, PCDAscii), test.ShouldBeNil)

	cloud2, err := NewFromFile(fn, ReadOptions{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud2.Size(), test.ShouldEqual, 2)
	test.That(t, CloudCentroid(cloud2).X, test.ShouldAlmostEqual, -1.5)

	_, err = NewFromFile(filepath.Join(t.TempDir(), "cloud.las"), ReadOptions{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how to read file")

	_, err = NewFromFile(filepath.Join(t.TempDir(), "missing.pcd"), ReadOptions{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
