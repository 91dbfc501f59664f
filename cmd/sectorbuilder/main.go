// Command sectorbuilder is a thin CLI wrapper over a Builder: it
// exists to exercise the engine from a shell during development, not
// as a production operator surface. Grounded on lotus's cmd/
// convention of urfave/cli/v2 command trees with colorized output.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/filecoin-project/go-state-types/abi"

	sectorbuilder "github.com/filecoin-project/go-sectorbuilder"
	"github.com/filecoin-project/go-sectorbuilder/config"
	"github.com/filecoin-project/go-sectorbuilder/internal/testutil"
	"github.com/filecoin-project/go-sectorbuilder/scheduler"
	"github.com/filecoin-project/go-sectorbuilder/types"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML config file",
	Value: "",
}

func loadConfig(cctx *cli.Context) *config.Config {
	path := cctx.String("config")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		color.Yellow("failed to load %s, using defaults: %s", path, err)
		return config.Default()
	}
	return cfg
}

func openBuilder(cctx *cli.Context) (*sectorbuilder.Builder, error) {
	cfg := loadConfig(cctx)
	var prover types.ProverID
	return sectorbuilder.New(cctx.Context, cfg, prover, &testutil.FakeSealer{}, scheduler.RandomTicketSource())
}

var addPieceCmd = &cli.Command{
	Name:      "add-piece",
	Usage:     "stage a piece of data read from stdin",
	ArgsUsage: "<piece-key> <num-bytes>",
	Flags:     []cli.Flag{configFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return errWrongArgCount()
		}
		key := cctx.Args().Get(0)
		n, err := strconv.ParseUint(cctx.Args().Get(1), 10, 64)
		if err != nil {
			return err
		}

		b, err := openBuilder(cctx)
		if err != nil {
			return err
		}
		defer b.Stop(context.Background())

		sectorID, err := b.AddPiece(cctx.Context, key, abi.UnpaddedPieceSize(n), os.Stdin, 0)
		if err != nil {
			return err
		}
		color.Green("staged %q into sector %d", key, sectorID)
		return nil
	},
}

var sealStatusCmd = &cli.Command{
	Name:      "seal-status",
	Usage:     "print the seal status of one sector",
	ArgsUsage: "<sector-id>",
	Flags:     []cli.Flag{configFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errWrongArgCount()
		}
		id, err := strconv.ParseUint(cctx.Args().Get(0), 10, 64)
		if err != nil {
			return err
		}

		b, err := openBuilder(cctx)
		if err != nil {
			return err
		}
		defer b.Stop(context.Background())

		st, err := b.GetSealStatus(types.SectorID(id))
		if err != nil {
			return err
		}
		fmt.Println(st.Kind.String())
		return nil
	},
}

var sealAllCmd = &cli.Command{
	Name:  "seal-all",
	Usage: "force every staged sector into the seal pipeline",
	Flags: []cli.Flag{configFlag},
	Action: func(cctx *cli.Context) error {
		b, err := openBuilder(cctx)
		if err != nil {
			return err
		}
		defer b.Stop(context.Background())

		ids, err := b.SealAllStagedSectors(cctx.Context)
		if err != nil {
			return err
		}

		bar := pb.StartNew(len(ids))
		for _, id := range ids {
			for {
				st, err := b.GetSealStatus(id)
				if err != nil {
					return err
				}
				if st.Kind == types.Sealed || st.Kind == types.Failed {
					break
				}
				time.Sleep(200 * time.Millisecond)
			}
			bar.Increment()
		}
		bar.Finish()
		return nil
	},
}

var sealedCmd = &cli.Command{
	Name:  "sealed",
	Usage: "list sealed sectors",
	Flags: []cli.Flag{
		configFlag,
		&cli.BoolFlag{Name: "check-health", Usage: "validate on-disk bytes against the recorded checksum"},
	},
	Action: func(cctx *cli.Context) error {
		b, err := openBuilder(cctx)
		if err != nil {
			return err
		}
		defer b.Stop(context.Background())

		sectors, err := b.GetSealedSectors(cctx.Bool("check-health"))
		if err != nil {
			return err
		}
		for _, s := range sectors {
			health := "unknown"
			if s.Health != nil {
				health = s.Health.String()
			}
			fmt.Printf("%d\t%s\t%s\n", s.Meta.SectorID, s.Meta.SectorAccess, health)
		}
		return nil
	},
}

var stagedCmd = &cli.Command{
	Name:  "staged",
	Usage: "list staged sectors",
	Flags: []cli.Flag{configFlag},
	Action: func(cctx *cli.Context) error {
		b, err := openBuilder(cctx)
		if err != nil {
			return err
		}
		defer b.Stop(context.Background())

		sectors, err := b.GetStagedSectors()
		if err != nil {
			return err
		}
		for _, s := range sectors {
			fmt.Printf("%d\t%s\t%d pieces\t%s\t%s\n", s.SectorID, s.SectorAccess, len(s.Pieces), humanize.Bytes(uint64(s.UsedBytes())), s.SealStatus.Kind.String())
		}
		return nil
	},
}

func errWrongArgCount() error {
	return fmt.Errorf("wrong number of arguments")
}

func main() {
	app := &cli.App{
		Name:  "sectorbuilder",
		Usage: "drive a sectorbuilder engine from the command line",
		Commands: []*cli.Command{
			addPieceCmd,
			sealStatusCmd,
			sealAllCmd,
			sealedCmd,
			stagedCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("error: %s", err)
		os.Exit(1)
	}
}
