package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// ReadOptions controls how a file is loaded into an IndexedPointCloud.
type ReadOptions struct {
	// Bits is the per-axis grid resolution. Zero means DefaultBits.
	Bits          int
	Fanout        int
	CacheCapacity int
}

func (opts ReadOptions) withDefaults() ReadOptions {
	if opts.Bits == 0 {
		opts.Bits = DefaultBits
	}
	if opts.Fanout == 0 {
		opts.Fanout = 32
	}
	return opts
}

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string, opts ReadOptions, logger golog.Logger) (cloud *IndexedPointCloud, err error) {
	var read func(io.Reader, ReadOptions, golog.Logger) (*IndexedPointCloud, error)
	switch filepath.Ext(fn) {
	case ".pcd":
		read = ReadPCD
	case ".ply":
		read = ReadPLY
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return read(f, opts, logger)
}

// WriteToPCDFile writes the point cloud out to a PCD file.
func WriteToPCDFile(cloud PointCloud, fn string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

func colorToPCDInt(pt Data) int {
	if pt == nil || !pt.HasColor() {
		return 255 << 16
	}

	r, g, b := pt.RGB255()
	x := 0

	x |= (int(r) << 16)
	x |= (int(g) << 8)
	x |= (int(b) << 0)
	return x
}

func pcdIntToColor(c int) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes the cloud to out. Positions are in millimeters and written in meters.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var err error

	_, err = fmt.Fprintf(out, "VERSION .7\n")
	if err != nil {
		return err
	}
	switch cloud.MetaData().HasColor {
	case true:
		_, err = fmt.Fprintf(out, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	case false:
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
		if err != nil {
			return err
		}
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
		if err != nil {
			return err
		}
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown pcd type %d", outputType)
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	hasColor := cloud.MetaData().HasColor
	var err error
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		x := pos.X / 1000.
		y := pos.Y / 1000.
		z := pos.Z / 1000.
		switch pcdtype {
		case PCDBinary:
			buf := make([]byte, 12, 16)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(x)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(z)))
			if hasColor {
				buf = binary.LittleEndian.AppendUint32(buf, uint32(colorToPCDInt(d)))
			}
			_, err = out.Write(buf)
		case PCDAscii:
			if hasColor {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", x, y, z, colorToPCDInt(d))
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", x, y, z)
			}
		}
		return err == nil
	})
	return err
}

func readFloat(n uint32) float64 {
	f := float64(math.Float32frombits(n))
	return math.Round(f*10000) / 10000
}

type pcdFieldType int

const (
	pcdPointOnly  pcdFieldType = 3
	pcdPointColor pcdFieldType = 4
)

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdHeader struct {
	fields    pcdFieldType
	size      []uint64
	valType   []pcdValType
	count     []uint64
	width     uint64
	height    uint64
	viewpoint [7]float64
	points    uint64
	data      PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, pcdHeader *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case "x y z":
			pcdHeader.fields = pcdPointOnly
		case "x y z rgb":
			pcdHeader.fields = pcdPointColor
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != int(pcdHeader.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		pcdHeader.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			pcdHeader.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil || pcdHeader.size[i] != 4 {
				return errors.Errorf("invalid SIZE field %s", token)
			}
		}
	case "TYPE":
		if len(tokens) != int(pcdHeader.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		pcdHeader.valType = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			switch t := pcdValType(token); t {
			case pcdValFloat, pcdValInt, pcdValUInt:
				pcdHeader.valType[i] = t
			default:
				return errors.Errorf("invalid TYPE field %s", token)
			}
		}
	case "COUNT":
		if len(tokens) != int(pcdHeader.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		pcdHeader.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			pcdHeader.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid COUNT field %s", token)
			}
			if pcdHeader.count[i] != 1 {
				return errors.Errorf("unsupported COUNT field %s", token)
			}
		}
	case "WIDTH":
		pcdHeader.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		pcdHeader.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for i, token := range tokens {
			pcdHeader.viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != pcdHeader.width*pcdHeader.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, pcdHeader.width*pcdHeader.height)
		}
		pcdHeader.points = points
	case "DATA":
		switch value {
		case "ascii":
			pcdHeader.data = PCDAscii
		case "binary":
			pcdHeader.data = PCDBinary
		case "binary_compressed":
			pcdHeader.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data %s", value)
		}
	}

	return nil
}

// ReadPCD reads a PCD file into an IndexedPointCloud. Positions are read in meters and stored in
// millimeters. The quantizer's cube is sized to the bounds of the points read. A later point at the
// exact position of an earlier one replaces it.
func ReadPCD(inRaw io.Reader, opts ReadOptions, logger golog.Logger) (*IndexedPointCloud, error) {
	opts = opts.withDefaults()
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	var line string
	var err error
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err = in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	if header.viewpoint != [7]float64{0, 0, 0, 1, 0, 0, 0} {
		logger.Warnw("ignoring non identity pcd viewpoint", "viewpoint", header.viewpoint)
	}

	var points []PointAndData
	switch header.data {
	case PCDAscii:
		points, err = readPCDAscii(in, header)
	case PCDBinary:
		points, err = readPCDBinary(in, header)
	case PCDCompressed:
		return nil, errors.New("compressed pcd not yet supported")
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
	if err != nil {
		return nil, err
	}

	return newCloudFromPoints(points, opts, "pcd", logger)
}

// newCloudFromPoints sizes a quantizer to the points' bounds and sets every point into a new cloud.
func newCloudFromPoints(points []PointAndData, opts ReadOptions, format string, logger golog.Logger) (*IndexedPointCloud, error) {
	finite := lo.Filter(points, func(pd PointAndData, _ int) bool {
		return isFinite(pd.P)
	})
	if skipped := len(points) - len(finite); skipped > 0 {
		logger.Warnw("skipping non finite "+format+" points", "skipped", skipped, "points", len(points))
	}
	points = finite

	meta := NewMetaData()
	for _, pd := range points {
		meta.Merge(pd.P, pd.D)
	}
	q, err := NewQuantizerForMetaData(meta, opts.Bits)
	if err != nil {
		return nil, err
	}
	cloud, err := NewIndexedPointCloud(q, opts.Fanout, opts.CacheCapacity, logger)
	if err != nil {
		return nil, err
	}
	for _, pd := range points {
		if err := cloud.Set(pd.P, pd.D); err != nil {
			return nil, err
		}
	}
	if dups := len(points) - cloud.Size(); dups > 0 {
		logger.Warnw(format+" points shared positions", "duplicates", dups, "points", len(points))
	}
	logger.Debugw("read "+format, "points", cloud.Size(), "cell_size", q.CellSize())
	return cloud, nil
}

func isFinite(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// pcdPreallocLimit bounds the points reserved up front from an untrusted POINTS header.
const pcdPreallocLimit = 1 << 20

func readPCDAscii(in *bufio.Reader, header pcdHeader) ([]PointAndData, error) {
	points := make([]PointAndData, 0, min(header.points, pcdPreallocLimit))
	for i := uint64(0); i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "error reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		point := make([]float64, len(tokens))
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		pd, err := readSliceToPoint(point, header)
		if err != nil {
			return nil, err
		}
		points = append(points, pd)
	}
	return points, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) ([]PointAndData, error) {
	points := make([]PointAndData, 0, min(header.points, pcdPreallocLimit))
	buf := make([]byte, 4)
	pointBuf := make([]float64, int(header.fields))
	for i := uint64(0); i < header.points; i++ {
		for j := range pointBuf {
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, errors.Wrapf(err, "error reading point %d", i)
			}
			n := binary.LittleEndian.Uint32(buf)
			switch header.valType[j] {
			case pcdValFloat:
				pointBuf[j] = readFloat(n)
			case pcdValInt:
				pointBuf[j] = float64(int32(n))
			case pcdValUInt:
				pointBuf[j] = float64(n)
			}
		}
		pd, err := readSliceToPoint(pointBuf, header)
		if err != nil {
			return nil, err
		}
		points = append(points, pd)
	}
	return points, nil
}

func readSliceToPoint(slice []float64, header pcdHeader) (PointAndData, error) {
	pos := r3.Vector{X: 1000. * slice[0], Y: 1000. * slice[1], Z: 1000. * slice[2]}
	switch header.fields {
	case pcdPointOnly:
		return PointAndData{P: pos, D: NewBasicData()}, nil
	case pcdPointColor:
		return PointAndData{P: pos, D: NewColoredData(pcdIntToColor(int(slice[3])))}, nil
	default:
		return PointAndData{}, errors.Errorf("unsupported pcd field type %d", header.fields)
	}
}
