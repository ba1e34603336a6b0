// Package main is a command line tool for loading PCD and PLY files into an octree and querying them.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go.viam.com/spatialindex/pointcloud"
)

const (
	// Flags.
	flagFile     = "file"
	flagBits     = "bits"
	flagFanout   = "fanout"
	flagCache    = "cache"
	flagPoint    = "point"
	flagK        = "k"
	flagRadius   = "radius"
	flagMin      = "min"
	flagMax      = "max"
	flagParallel = "parallel"
	flagOut      = "out"
	flagBinary   = "binary"
)

func main() {
	var logger golog.Logger

	fileFlags := []cli.Flag{
		&cli.PathFlag{
			Name:     flagFile,
			Aliases:  []string{"f"},
			Required: true,
			Usage:    "PCD or PLY `FILE` to load",
		},
		&cli.IntFlag{
			Name:  flagBits,
			Value: pointcloud.DefaultBits,
			Usage: "grid resolution in bits per axis",
		},
		&cli.IntFlag{
			Name:  flagFanout,
			Value: 32,
			Usage: "points a leaf holds before it is split",
		},
		&cli.IntFlag{
			Name:  flagCache,
			Value: 0,
			Usage: "number of query results to cache",
		},
	}
	withFileFlags := func(flags ...cli.Flag) []cli.Flag {
		return append(append([]cli.Flag{}, fileFlags...), flags...)
	}
	load := func(c *cli.Context) (*pointcloud.IndexedPointCloud, error) {
		return pointcloud.NewFromFile(c.Path(flagFile), pointcloud.ReadOptions{
			Bits:          c.Int(flagBits),
			Fanout:        c.Int(flagFanout),
			CacheCapacity: c.Int(flagCache),
		}, logger)
	}

	app := &cli.App{
		Name:  "octree-query",
		Usage: "query point clouds through a Morton-ordered octree",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("octree-query")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "knn",
				Usage:     "print the k points nearest to a point",
				UsageText: "octree-query knn --file <FILE> --point x,y,z [--k N]",
				Flags: withFileFlags(
					&cli.StringFlag{Name: flagPoint, Required: true, Usage: "query point as x,y,z"},
					&cli.IntFlag{Name: flagK, Value: 1, Usage: "number of neighbors"},
				),
				Action: func(c *cli.Context) error {
					p, err := parseVector(c.String(flagPoint))
					if err != nil {
						return err
					}
					cloud, err := load(c)
					if err != nil {
						return err
					}
					neighbors, err := cloud.Nearest(p, c.Int(flagK))
					if err != nil {
						return err
					}
					printNeighbors(c, neighbors)
					return nil
				},
			},
			{
				Name:      "radius",
				Usage:     "print the points within a distance of a point",
				UsageText: "octree-query radius --file <FILE> --point x,y,z --radius R",
				Flags: withFileFlags(
					&cli.StringFlag{Name: flagPoint, Required: true, Usage: "query point as x,y,z"},
					&cli.Float64Flag{Name: flagRadius, Required: true, Usage: "search radius"},
				),
				Action: func(c *cli.Context) error {
					p, err := parseVector(c.String(flagPoint))
					if err != nil {
						return err
					}
					cloud, err := load(c)
					if err != nil {
						return err
					}
					neighbors, err := cloud.WithinRadius(p, c.Float64(flagRadius))
					if err != nil {
						return err
					}
					printNeighbors(c, neighbors)
					return nil
				},
			},
			{
				Name:      "range",
				Usage:     "print the points inside a box",
				UsageText: "octree-query range --file <FILE> --min x,y,z --max x,y,z",
				Flags: withFileFlags(
					&cli.StringFlag{Name: flagMin, Required: true, Usage: "minimum corner as x,y,z"},
					&cli.StringFlag{Name: flagMax, Required: true, Usage: "maximum corner as x,y,z"},
				),
				Action: func(c *cli.Context) error {
					minPt, err := parseVector(c.String(flagMin))
					if err != nil {
						return errors.Wrap(err, "error parsing min flag")
					}
					maxPt, err := parseVector(c.String(flagMax))
					if err != nil {
						return errors.Wrap(err, "error parsing max flag")
					}
					cloud, err := load(c)
					if err != nil {
						return err
					}
					points, err := cloud.InBox(minPt, maxPt)
					if err != nil {
						return err
					}
					for _, pd := range points {
						fmt.Fprintf(c.App.Writer, "%s\n", formatVector(pd.P))
					}
					fmt.Fprintf(c.App.Writer, "%d points\n", len(points))
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "print the shape of the octree and the distribution of nearest neighbor distances",
				Flags: withFileFlags(
					&cli.IntFlag{Name: flagParallel, Value: runtime.NumCPU(), Usage: "number of batches searched in parallel"},
				),
				Action: func(c *cli.Context) error {
					cloud, err := load(c)
					if err != nil {
						return err
					}
					return printStats(c, cloud)
				},
			},
			{
				Name:  "convert",
				Usage: "load a PCD file and write it back out",
				Flags: withFileFlags(
					&cli.PathFlag{Name: flagOut, Required: true, Usage: "output `FILE`"},
					&cli.BoolFlag{Name: flagBinary, Usage: "write binary instead of ascii data"},
				),
				Action: func(c *cli.Context) error {
					cloud, err := load(c)
					if err != nil {
						return err
					}
					outputType := pointcloud.PCDAscii
					if c.Bool(flagBinary) {
						outputType = pointcloud.PCDBinary
					}
					if err := pointcloud.WriteToPCDFile(cloud, c.Path(flagOut), outputType); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %d points to %s\n", cloud.Size(), c.Path(flagOut))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func parseVector(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, errors.Errorf("expected x,y,z but got %q", s)
	}
	var v [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "invalid component %q", part)
		}
		v[i] = f
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("%g,%g,%g", v.X, v.Y, v.Z)
}

func printNeighbors(c *cli.Context, neighbors []pointcloud.PointAndDistance) {
	for _, n := range neighbors {
		fmt.Fprintf(c.App.Writer, "%s\t%g\n", formatVector(n.P), n.Distance)
	}
	fmt.Fprintf(c.App.Writer, "%d points\n", len(neighbors))
}

func printStats(c *cli.Context, cloud *pointcloud.IndexedPointCloud) error {
	s := cloud.Stats()
	fmt.Fprintf(c.App.Writer, "points: %d\ndepth: %d\nnodes: %d\nleaves: %d\ncell size: %g\n",
		s.Len, s.Depth, s.Nodes, s.Leaves, cloud.Quantizer().CellSize())
	if cloud.Size() < 2 {
		return nil
	}

	numBatches := max(c.Int(flagParallel), 1)
	distances := make([][]float64, numBatches)
	g, ctx := errgroup.WithContext(c.Context)
	for b := 0; b < numBatches; b++ {
		g.Go(func() error {
			var searchErr error
			cloud.Iterate(numBatches, b, func(p r3.Vector, _ pointcloud.Data) bool {
				if searchErr = ctx.Err(); searchErr != nil {
					return false
				}
				var neighbors []pointcloud.PointAndDistance
				neighbors, searchErr = cloud.Nearest(p, 2)
				if searchErr != nil {
					return false
				}
				// the first neighbor is the point itself
				distances[b] = append(distances[b], neighbors[1].Distance)
				return true
			})
			return searchErr
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data := stats.Float64Data(lo.Flatten(distances))
	mean, err := stats.Mean(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "nearest neighbor distance mean: %g\n", mean)
	for _, percent := range []float64{50, 90, 99} {
		v, err := stats.Percentile(data, percent)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "nearest neighbor distance p%g: %g\n", percent, v)
	}
	return nil
}
