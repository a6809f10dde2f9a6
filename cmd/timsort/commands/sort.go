package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/king54346/timsort/parallel"
	"github.com/king54346/timsort/timsort"
)

type sortCommand struct {
	app     *app
	field   int
	numeric bool
	reverse bool
	output  string
}

// record is one input line with its pre-parsed sort key.
type record struct {
	line string
	key  string
	num  float64
}

func newSortCommand(a *app) *cobra.Command {
	sc := &sortCommand{app: a}
	cmd := &cobra.Command{
		Use:   "sort [file...]",
		Short: "Stably sort lines of text",
		Long: `Sort lines read from the given files (or stdin) in parallel. Lines whose
keys compare equal keep their input order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sc.run(cmd, args)
		},
	}
	cmd.Flags().IntVarP(&sc.field, "key", "k", 0, "1-based whitespace separated field to sort by (0 = whole line)")
	cmd.Flags().BoolVarP(&sc.numeric, "numeric", "n", false, "compare keys as numbers")
	cmd.Flags().BoolVarP(&sc.reverse, "reverse", "r", false, "descending order, equal keys still keep input order")
	cmd.Flags().StringVarP(&sc.output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (sc *sortCommand) run(cmd *cobra.Command, args []string) error {
	if sc.field < 0 {
		return fmt.Errorf("--key must be >= 0, got %d", sc.field)
	}
	records, err := sc.read(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := parallel.SortFunc(records, sc.compare(), sc.app.sortOptions()...); err != nil {
		return fmt.Errorf("sort: %w", err)
	}
	elapsed := time.Since(start)
	sc.app.sorts.Observe("parallel", len(records), elapsed)
	sc.app.logger.Debug("sorted lines",
		zap.String("lines", humanize.Comma(int64(len(records)))),
		zap.Duration("elapsed", elapsed))

	if sc.output == "" {
		return writeRecords(cmd.OutOrStdout(), records)
	}
	f, err := os.Create(sc.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeRecords(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func (sc *sortCommand) read(stdin io.Reader, paths []string) ([]record, error) {
	var records []record
	readFrom := func(r io.Reader, name string) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			records = append(records, sc.newRecord(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		return nil
	}

	if len(paths) == 0 {
		return records, readFrom(stdin, "stdin")
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		err = readFrom(f, p)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (sc *sortCommand) newRecord(line string) record {
	rec := record{line: line, key: line}
	if sc.field > 0 {
		fields := strings.Fields(line)
		if sc.field <= len(fields) {
			rec.key = fields[sc.field-1]
		} else {
			rec.key = ""
		}
	}
	if sc.numeric {
		// unparsable keys count as zero, like sort -n
		if v, err := strconv.ParseFloat(strings.TrimSpace(rec.key), 64); err == nil {
			rec.num = v
		}
	}
	return rec
}

func (sc *sortCommand) compare() func(a, b record) int {
	var cmp func(a, b record) int
	if sc.numeric {
		cmp = func(a, b record) int { return timsort.Compare(a.num, b.num) }
	} else {
		cmp = func(a, b record) int { return strings.Compare(a.key, b.key) }
	}
	if sc.reverse {
		asc := cmp
		cmp = func(a, b record) int { return asc(b, a) }
	}
	return cmp
}

func writeRecords(w io.Writer, records []record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(r.line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
