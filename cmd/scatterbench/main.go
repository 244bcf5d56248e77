// scatterbench drives a periodic halo exchange over an in-process rank group and reports the
// sustained scatter throughput.
//
// Every rank owns --local_size blocks of --block_size components and exchanges --ghost boundary
// blocks with each ring neighbor per cycle, the pattern finite-difference and finite-element
// solvers repeat on every iteration.
//
// Example:
//
//	scatterbench --ranks=8 --local_size=100000 --ghost=2 --cycles=200
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/parvec/parvec/comm"
	"github.com/parvec/parvec/scatter"
	"github.com/parvec/parvec/types/vectors"
	"github.com/parvec/parvec/types/xslices"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var (
	flagRanks     = pflag.Int("ranks", 4, "Number of ranks in the in-process group.")
	flagLocalSize = pflag.Int("local_size", 10000, "Blocks owned per rank.")
	flagGhost     = pflag.Int("ghost", 1, "Boundary blocks exchanged with each ring neighbor.")
	flagBlockSize = pflag.Int("block_size", 1, "Components per block.")
	flagCycles    = pflag.Int("cycles", 100, "Halo-exchange cycles to run.")
	flagAdd       = pflag.Bool("add", false, "Accumulate into ghost slots instead of overwriting them.")
	flagMerged    = pflag.Bool("merged", false, "Fold the end phase into the begin phase.")
	flagView      = pflag.Bool("view", false, "Print rank 0's scatter context before running.")
)

func main() {
	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	if *flagRanks < 2 || *flagLocalSize < 2*(*flagGhost) || *flagGhost < 1 || *flagBlockSize < 1 || *flagCycles < 1 {
		klog.Errorf("Invalid flag combination. See 'scatterbench -help'.")
		os.Exit(1)
	}

	elapsed := must.M1(run())

	// Per cycle each rank ships 2*ghost blocks and copies its owned blocks in place.
	cycles := int64(*flagCycles)
	moved := cycles * int64(*flagRanks) * int64(2*(*flagGhost)+*flagLocalSize) * int64(*flagBlockSize)
	bytesMoved := uint64(moved) * 8
	fmt.Printf("ranks:         %d\n", *flagRanks)
	fmt.Printf("cycles:        %s\n", humanize.Comma(cycles))
	fmt.Printf("elements:      %s (%s)\n", humanize.Comma(moved), humanize.Bytes(bytesMoved))
	fmt.Printf("elapsed:       %s\n", elapsed)
	fmt.Printf("throughput:    %s/s\n", humanize.Bytes(uint64(float64(bytesMoved)/elapsed.Seconds())))
}

func run() (time.Duration, error) {
	nRanks, ghost, bs := *flagRanks, *flagGhost, *flagBlockSize
	owned := *flagLocalSize * bs
	fabric := comm.NewFabric(nRanks)
	mode := scatter.Insert
	if *flagAdd {
		mode = scatter.Add
	}

	bar := progressbar.NewOptions(*flagCycles,
		progressbar.OptionSetDescription("halo exchange"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowIts())

	start := time.Now()
	var eg errgroup.Group
	for rank := 0; rank < nRanks; rank++ {
		group := fabric.Group(rank)
		eg.Go(func() error {
			ctx, err := haloContext(group)
			if err != nil {
				return err
			}
			defer func() { _ = ctx.Destroy() }()
			ctx.SetMerged(*flagMerged)
			if *flagView && group.Rank() == 0 {
				if err = ctx.View(os.Stderr); err != nil {
					return err
				}
			}

			x := vectors.FromFlatData(xslices.Iota(float64(group.Rank()), owned))
			y := vectors.New(owned + 2*ghost*bs)
			for cycle := 0; cycle < *flagCycles; cycle++ {
				if err = ctx.Begin(x, y, mode, scatter.Forward); err != nil {
					return err
				}
				if err = ctx.End(x, y, mode, scatter.Forward); err != nil {
					return err
				}
				if group.Rank() == 0 {
					_ = bar.Add(1)
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	elapsed := time.Since(start)
	_ = bar.Finish()
	fmt.Println()
	return elapsed, err
}

// haloContext wires one rank into the periodic ring: the first `ghost` owned blocks go to the
// previous rank, the last `ghost` to the next, and the two incoming halos land after the owned
// range of the destination vector.
func haloContext(group *comm.Group) (*scatter.Context, error) {
	nRanks, ghost, bs := group.Size(), *flagGhost, *flagBlockSize
	owned := *flagLocalSize * bs
	prev := (group.Rank() + nRanks - 1) % nRanks
	next := (group.Rank() + 1) % nRanks

	firstBlocks := make([]int, ghost) // Shipped to prev, lands in its right halo.
	lastBlocks := make([]int, ghost)  // Shipped to next, lands in its left halo.
	leftHalo := make([]int, ghost)
	rightHalo := make([]int, ghost)
	for ii := 0; ii < ghost; ii++ {
		firstBlocks[ii] = ii * bs
		lastBlocks[ii] = owned - (ghost-ii)*bs
		leftHalo[ii] = owned + ii*bs
		rightHalo[ii] = owned + (ghost+ii)*bs
	}

	sends := []scatter.Block{{Peer: prev, Indices: firstBlocks}, {Peer: next, Indices: lastBlocks}}
	recvs := []scatter.Block{{Peer: prev, Indices: leftHalo}, {Peer: next, Indices: rightHalo}}
	if nRanks == 2 {
		// prev == next: fold both directions into one message per cycle. Slot order follows the
		// receive layout: left halo holds the peer's last blocks, right halo its first.
		sends = []scatter.Block{{Peer: next, Indices: append(xslices.Copy(lastBlocks), firstBlocks...)}}
		recvs = []scatter.Block{{Peer: next, Indices: append(xslices.Copy(leftHalo), rightHalo...)}}
	}

	slots := make([]int, *flagLocalSize)
	for ii := range slots {
		slots[ii] = ii * bs
	}
	ctx, err := scatter.NewDistributed(group, bs, sends, recvs, slots, slots)
	if err != nil {
		return nil, err
	}
	ctx.DeclareSizes(owned+2*ghost*bs, owned)
	return ctx, nil
}
