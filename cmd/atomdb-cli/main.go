// Command atomdb-cli drives a standalone atombase.Engine from the shell for
// manual exercising: bulk insert, a single-predicate find, and a group-by
// aggregate, plus persist/load round-tripping. It is not part of the FFI
// surface; it builds the same wire records §6 describes and feeds them
// through the public Engine API the way a real client would.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/atombase/atombase"
	"github.com/atombase/atombase/atom"
)

var (
	cmd        string
	configPath string
	dataPath   string
	collection string

	field uint
	value int64

	filterField uint
	filterOp    string
	filterValue int64

	groupField  uint
	targetField uint
	targetName  uint
	aggOp       string

	count int
)

func init() {
	flag.StringVar(&cmd, "cmd", "", "insert|find|aggregate|persist|load")
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (optional, overrides defaults)")
	flag.StringVar(&dataPath, "data-path", "", "persistence directory (overrides config's persist.data-path)")
	flag.StringVar(&collection, "collection", "", "collection name")

	flag.UintVar(&field, "field", 0, "insert: field name to set on each inserted document")
	flag.Int64Var(&value, "value", 0, "insert: int64 value to set on -field")
	flag.IntVar(&count, "count", 1, "insert: number of documents to insert")

	flag.UintVar(&filterField, "filter-field", 0, "find: field name to filter on")
	flag.StringVar(&filterOp, "filter-op", "eq", "find: eq|ne|gt|gte|lt|lte")
	flag.Int64Var(&filterValue, "filter-value", 0, "find: int64 value to compare against")

	flag.UintVar(&groupField, "group-field", 0, "aggregate: field name to group by")
	flag.UintVar(&targetField, "target-field", 0, "aggregate: value field to accumulate")
	flag.UintVar(&targetName, "target-name", 0, "aggregate: output field name for the accumulated target")
	flag.StringVar(&aggOp, "agg-op", "sum", "aggregate: sum|count|min|max")
}

func main() {
	flag.Parse()

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = level.NewFilter(logger, level.AllowInfo())

	if collection == "" {
		fmt.Println("-collection is required")
		os.Exit(1)
	}

	cfg := atombase.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = atombase.LoadConfig(configPath)
		if err != nil {
			level.Error(logger).Log("msg", "config load failed", "err", err)
			os.Exit(1)
		}
	}
	if dataPath != "" {
		cfg.Persist.Enabled = true
		cfg.Persist.DataPath = dataPath
	}

	e := atombase.New(cfg, logger)

	var err error
	switch cmd {
	case "insert":
		err = runInsert(e)
	case "find":
		err = runFind(e)
	case "aggregate":
		err = runAggregate(e)
	case "persist":
		err = e.PersistCollection(collection)
	case "load":
		err = e.LoadCollection(collection)
		if err == nil {
			err = runFind(e)
		}
	default:
		fmt.Println("-cmd must be one of: insert, find, aggregate, persist, load")
		os.Exit(1)
	}

	if err != nil {
		level.Error(logger).Log("msg", "command failed", "cmd", cmd, "err", err)
		os.Exit(1)
	}
}

func runInsert(e *atombase.Engine) error {
	doc := []atom.Atom{atom.New(0, uint32(field), atom.TypeInt64, 8, uint64(value))}
	for i := 0; i < count; i++ {
		view, ptr, err := e.AcquireInsertBuffer(atombase.NewCandle(), collection, len(doc)*16)
		if err != nil {
			return err
		}
		copy(view, doc)
		if ok, err := e.ReleaseInsertBuffer(atombase.NewCandle(), collection, ptr); err != nil || !ok {
			return fmt.Errorf("atomdb-cli: release_insert_buffer failed: %w", err)
		}
	}
	fmt.Printf("inserted %d document(s) into %q\n", count, collection)
	return nil
}

func runFind(e *atombase.Engine) error {
	op, err := parseCompareOp(filterOp)
	if err != nil {
		return err
	}

	lft := encodeLFT(0, op, atom.New(0, uint32(filterField), atom.TypeInt64, 8, uint64(filterValue)))
	qp := make([]byte, 0)

	out := make([]atom.Atom, 1<<16)
	n, err := e.QueryFind(atombase.NewCandle(), collection, nil, lft, qp, out)
	if err != nil {
		return err
	}

	printAtoms(out[:n])
	return nil
}

func runAggregate(e *atombase.Engine) error {
	op, err := parseAccumulateOp(aggOp)
	if err != nil {
		return err
	}

	q := encodeAggregateQuery(uint32(groupField), uint32(targetName), uint32(targetField), op)

	out := make([]atom.Atom, 1<<16)
	n, err := e.QueryAggregate(atombase.NewCandle(), collection, q, out, false)
	if err != nil {
		return err
	}

	printAtoms(out[:n])
	return nil
}

func printAtoms(atoms []atom.Atom) {
	for _, a := range atoms {
		switch {
		case atom.IsFloat(a.TypeTag()):
			fmt.Printf("  name=%d float=%v\n", a.Name(), math.Float64frombits(a.Value()))
		default:
			fmt.Printf("  name=%d type=%d value=%d\n", a.Name(), a.TypeTag(), a.Value())
		}
	}
	fmt.Printf("%d atom(s)\n", len(atoms))
}

func parseCompareOp(s string) (atom.Operator, error) {
	switch s {
	case "eq":
		return atom.OpEQ, nil
	case "ne":
		return atom.OpNE, nil
	case "gt":
		return atom.OpGT, nil
	case "gte":
		return atom.OpGTE, nil
	case "lt":
		return atom.OpLT, nil
	case "lte":
		return atom.OpLTE, nil
	default:
		return 0, fmt.Errorf("atomdb-cli: unknown -filter-op %q", s)
	}
}

func parseAccumulateOp(s string) (atom.Operator, error) {
	switch s {
	case "sum":
		return atom.OpSUM, nil
	case "count":
		return atom.OpCOUNT, nil
	case "min":
		return atom.OpMIN, nil
	case "max":
		return atom.OpMAX, nil
	default:
		return 0, fmt.Errorf("atomdb-cli: unknown -agg-op %q", s)
	}
}

// encodeLFT builds one §6 LFT record: idx:u32, op:u32, pad:u64, filter:16B.
func encodeLFT(idx uint32, op atom.Operator, filter atom.Atom) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:4], idx)
	binary.LittleEndian.PutUint32(b[4:8], uint32(op))
	binary.LittleEndian.PutUint64(b[16:24], filter.Lo)
	binary.LittleEndian.PutUint64(b[24:32], filter.Hi)
	return b
}

// encodeAggregateQuery builds the §6 aggregate-query blob: group name
// followed by a single Aggr1 record {target_name, acc_name, op}.
func encodeAggregateQuery(groupName, targetName, accName uint32, op atom.Operator) []byte {
	b := make([]byte, 4+12)
	binary.LittleEndian.PutUint32(b[0:4], groupName)
	binary.LittleEndian.PutUint32(b[4:8], targetName)
	binary.LittleEndian.PutUint32(b[8:12], accName)
	binary.LittleEndian.PutUint32(b[12:16], uint32(op))
	return b
}
