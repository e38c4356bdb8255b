package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/countentropy/countentropy/internal/collector"
	"github.com/countentropy/countentropy/pkg/entropy"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		slog.Error("entropy failed", "err", err)
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:      "entropy",
		Usage:     "empirical Shannon entropy of a count bag",
		ArgsUsage: "[file ...]",
		Description: "Reads one count per line (stdin when no file is given) and prints\n" +
			"the entropy of the distribution. Several files are folded into one bag.\n" +
			"Negative counts are treated as zero.",
		Reader:    in,
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base",
				Aliases: []string{"b"},
				Usage:   `logarithm base: "log" (natural), "log2" or "log10"`,
			},
			&cli.StringSliceFlag{
				Name:    "schema",
				Aliases: []string{"s"},
				Usage:   "declared record field types",
				Value:   cli.NewStringSlice("long"),
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "also print categories, total, max entropy and evenness",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	est, err := entropy.New(c.String("base"))
	if err != nil {
		return err
	}

	names := c.StringSlice("schema")
	kinds := make([]entropy.Kind, len(names))
	for i, name := range names {
		k, ok := entropy.ParseKind(name)
		if !ok {
			return fmt.Errorf("unknown schema type %q", name)
		}
		kinds[i] = k
	}

	acc := est.NewAccumulator()
	if c.NArg() == 0 {
		if err := accumulate(acc, c.App.Reader, kinds); err != nil {
			return fmt.Errorf("stdin: %w", err)
		}
	}
	for _, path := range c.Args().Slice() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = accumulate(acc, f, kinds)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	h := acc.Finalize()
	w := c.App.Writer
	if !c.Bool("stats") {
		fmt.Fprintln(w, strconv.FormatFloat(h, 'f', -1, 64))
		return nil
	}

	hmax := entropy.MaxEntropy(acc.Categories(), est.Base())
	var even float64
	if hmax > 0 {
		even = h / hmax
	}
	fmt.Fprintf(w, "base\t%s\n", est.Base())
	fmt.Fprintf(w, "entropy\t%s\n", strconv.FormatFloat(h, 'f', -1, 64))
	fmt.Fprintf(w, "max_entropy\t%s\n", strconv.FormatFloat(hmax, 'f', -1, 64))
	fmt.Fprintf(w, "normalized\t%s\n", strconv.FormatFloat(even, 'f', -1, 64))
	fmt.Fprintf(w, "categories\t%d\n", acc.Categories())
	fmt.Fprintf(w, "total\t%d\n", acc.Total())
	return nil
}

func accumulate(acc *entropy.Accumulator, r io.Reader, kinds []entropy.Kind) error {
	bag, err := collector.ReadBag(r, kinds)
	if err != nil {
		return err
	}
	return acc.Accumulate(bag)
}
