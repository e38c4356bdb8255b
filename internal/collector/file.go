package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/pkg/entropy"
)

type fileCollector struct {
	src   config.Source
	kinds []entropy.Kind
}

// Collect reads every configured file as one partial bag.
func (c *fileCollector) Collect(_ context.Context) (*Collection, error) {
	col := newCollection(c.src.ID, config.SourceFile)

	for _, path := range c.src.Paths {
		bag, err := readFile(path, c.kinds)
		if err != nil {
			col.Err = fmt.Errorf("file collect %q: %w", c.src.ID, err)
			return col, nil
		}
		col.Bags = append(col.Bags, bag)
	}
	return col, nil
}

func readFile(path string, kinds []entropy.Kind) (entropy.Bag, error) {
	f, err := os.Open(path)
	if err != nil {
		return entropy.Bag{}, err
	}
	defer f.Close()

	bag, err := ReadBag(f, kinds)
	if err != nil {
		return entropy.Bag{}, fmt.Errorf("%s: %w", path, err)
	}
	return bag, nil
}

// ReadBag reads tab-separated records declared by kinds, one per line.
// Blank lines are skipped. A line with more than one field fails with
// *entropy.SchemaShapeError.
//
// Counts are parsed only when kinds declares a single integral field; any
// other declaration yields a bag carrying just the schema, which the
// estimator rejects without looking at the values.
func ReadBag(r io.Reader, kinds []entropy.Kind) (entropy.Bag, error) {
	fields := make([]entropy.Field, len(kinds))
	for i, k := range kinds {
		fields[i] = entropy.Field{Name: fmt.Sprintf("f%d", i+1), Kind: k}
	}
	bag := entropy.Bag{Schema: &entropy.Schema{Fields: fields}}
	if len(kinds) != 1 || !kinds[0].Integral() {
		return bag, nil
	}

	bitSize := 64
	if kinds[0] == entropy.KindInt32 {
		bitSize = 32
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if parts := strings.Split(text, "\t"); len(parts) != 1 {
			return entropy.Bag{}, fmt.Errorf("line %d: %w", line, &entropy.SchemaShapeError{Fields: len(parts)})
		}
		n, err := strconv.ParseInt(text, 10, bitSize)
		if err != nil {
			return entropy.Bag{}, fmt.Errorf("line %d: %w", line, err)
		}
		bag.Counts = append(bag.Counts, n)
	}
	if err := sc.Err(); err != nil {
		return entropy.Bag{}, err
	}
	return bag, nil
}
