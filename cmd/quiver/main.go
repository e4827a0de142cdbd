// Command quiver inspects parquet files: it prints the mapped Arrow
// schema, counts records without materializing them, dumps a single
// column as an Arrow array, or reads the whole file as a table and
// prints its row and column counts and column types.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/brimdata/quiver"
)

var (
	schemaFlag = flag.Bool("schema", false, "print the Arrow schema and exit")
	scanFlag   = flag.Bool("scan", false, "count records without materializing them")
	columnFlag = flag.Int("column", -1, "dump a single leaf column")
	threads    = flag.Int("threads", 1, "worker count for table reads")
	batchSize  = flag.Int64("batch", 1024, "scan batch size")
	verbose    = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: quiver [flags] file.parquet")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "quiver: %s\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	r, err := quiver.OpenFile(path, quiver.ReaderProps{NumThreads: *threads, Logger: logger})
	if err != nil {
		return err
	}
	defer r.Close()
	switch {
	case *schemaFlag:
		sc, err := r.Schema()
		if err != nil {
			return err
		}
		fmt.Println(sc)
	case *scanFlag:
		n, err := r.ScanContents(nil, *batchSize)
		if err != nil {
			return err
		}
		fmt.Printf("%d records in %d row groups\n", n, r.NumRowGroups())
	case *columnFlag >= 0:
		arr, err := r.ReadColumn(*columnFlag)
		if err != nil {
			return err
		}
		defer arr.Release()
		fmt.Println(arr)
	default:
		tbl, err := r.ReadTable()
		if err != nil {
			return err
		}
		defer tbl.Release()
		fmt.Printf("%d rows x %d columns\n", tbl.NumRows(), tbl.NumCols())
		for i := 0; i < int(tbl.NumCols()); i++ {
			col := tbl.Column(i)
			fmt.Printf("%s: %s\n", col.Name(), col.DataType())
		}
	}
	return nil
}
