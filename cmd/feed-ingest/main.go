// Command feed-ingest builds a catalog document from distributor feed files.
//
// Each feed is a gzip-compressed file of pipe-separated records:
//
//	SKU|Title|UnitPrice|MSRP|Category|Publisher|CaseQty
//
// Distributor feeds are noisy: discontinued titles linger in a single feed
// long after they stop shipping. A title is only trusted when at least two
// feeds carry the same SKU, so ingestion runs in two passes: pass 1 builds a
// bloom filter of SKUs per feed, pass 2 re-streams each feed and keeps records
// whose SKU appears in another feed's filter. When feeds disagree on price,
// the lowest unit price wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
)

const (
	bloomCapacity = 5_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	feedFields    = 7
)

// record is one parsed feed line.
type record struct {
	sku       string
	title     string
	unitPrice decimal.Decimal
	msrp      decimal.Decimal
	category  string
	publisher string
	caseQty   int
}

// fileResult holds the kept records of a single feed plus the bitmask of
// feeds each SKU was seen in.
type fileResult struct {
	records map[string]record
	seenIn  map[string]uint
}

func main() {
	var (
		dataDir      string
		numFeeds     int
		out          string
		companyName  string
		minimumOrder string
		currency     string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feedN.gz files")
	flag.IntVar(&numFeeds, "feeds", 3, "number of feed files")
	flag.StringVar(&out, "out", "catalog.json", "output catalog document path")
	flag.StringVar(&companyName, "company", "", "wholesaler company name")
	flag.StringVar(&minimumOrder, "minimum-order", "0", "minimum order value")
	flag.StringVar(&currency, "currency", "USD", "ISO currency code")
	flag.Parse()

	if companyName == "" {
		slog.Error("company name is required: set --company")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, numFeeds, out, companyName, minimumOrder, currency); err != nil {
		slog.Error("feed ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("feed ingest completed successfully")
}

func run(ctx context.Context, dataDir string, numFeeds int, out, companyName, minimumOrder, currency string) error {
	minOrder, err := decimal.NewFromString(minimumOrder)
	if err != nil {
		return errors.Wrap(err, "parse minimum order")
	}

	files := make([]string, numFeeds)
	for i := range numFeeds {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("feed%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: build one SKU bloom filter per feed, concurrently.
	slog.Info("pass 1: building sku filters", slog.Int("feeds", numFeeds))

	filters, err := buildSKUFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build sku filters")
	}

	// Pass 2: keep records whose SKU another feed corroborates.
	slog.Info("pass 2: collecting corroborated records")

	products, err := collectProducts(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "collect products")
	}

	slog.Info("corroborated products", slog.Int("count", len(products)))

	if len(products) == 0 {
		return errors.New("no product appears in two or more feeds")
	}

	return writeCatalog(out, companyName, minOrder, currency, products)
}

// buildSKUFilters creates one bloom filter per feed, concurrently.
func buildSKUFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamFeed(ctx, path, func(r record) {
			filter.AddString(r.sku)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
		)

		filters[idx] = filter
		return nil
	}
}

// collectProducts re-streams each feed keeping records corroborated by another
// feed's filter, then merges across feeds: a SKU must be confirmed in 2+ feeds
// and the lowest unit price wins.
func collectProducts(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]catalog.Product, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(collectFromFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge: bitmask union across feeds, cheapest record wins per SKU.
	seenIn := make(map[string]uint)
	merged := make(map[string]record)
	for _, res := range results {
		for sku, mask := range res.seenIn {
			seenIn[sku] |= mask
		}
		for sku, rec := range res.records {
			if best, ok := merged[sku]; !ok || rec.unitPrice.LessThan(best.unitPrice) {
				merged[sku] = rec
			}
		}
	}

	var products []catalog.Product
	for sku, rec := range merged {
		if bits.OnesCount(seenIn[sku]) < 2 {
			continue
		}
		products = append(products, catalog.Product{
			ID:        strings.ToLower(sku),
			SKU:       rec.sku,
			Title:     rec.title,
			UnitPrice: rec.unitPrice,
			MSRP:      rec.msrp,
			Category:  rec.category,
			Publisher: rec.publisher,
			MinQty:    1,
			CaseQty:   rec.caseQty,
			InStock:   true,
		})
	}

	sort.Slice(products, func(i, j int) bool { return products[i].SKU < products[j].SKU })
	return products, nil
}

func collectFromFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		res := fileResult{
			records: make(map[string]record),
			seenIn:  make(map[string]uint),
		}
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamFeed(ctx, path, func(r record) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}

			res.seenIn[r.sku] |= fileBit

			// Keep only records another feed's filter corroborates.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(r.sku) {
					if best, ok := res.records[r.sku]; !ok || r.unitPrice.LessThan(best.unitPrice) {
						res.records[r.sku] = r
					}
					res.seenIn[r.sku] |= uint(1) << uint(j)
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
			slog.Int("kept", len(res.records)),
		)

		results[idx] = res
		return nil
	}
}

// streamFeed opens a gzip-compressed feed and calls fn for each parseable
// record. Malformed lines are skipped, not fatal.
func streamFeed(ctx context.Context, path string, fn func(record)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var skipped uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, ok := parseLine(scanner.Text())
		if !ok {
			skipped++
			continue
		}
		fn(r)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	if skipped > 0 {
		slog.Warn("skipped malformed lines", slog.String("file", path), slog.Uint64("count", skipped))
	}

	return nil
}

// parseLine parses one pipe-separated feed record.
func parseLine(line string) (record, bool) {
	parts := strings.Split(line, "|")
	if len(parts) != feedFields {
		return record{}, false
	}

	unitPrice, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return record{}, false
	}
	msrp, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
	if err != nil {
		return record{}, false
	}
	caseQty, err := strconv.Atoi(strings.TrimSpace(parts[6]))
	if err != nil || caseQty < 1 {
		return record{}, false
	}

	r := record{
		sku:       strings.TrimSpace(parts[0]),
		title:     strings.TrimSpace(parts[1]),
		unitPrice: unitPrice,
		msrp:      msrp,
		category:  strings.TrimSpace(parts[4]),
		publisher: strings.TrimSpace(parts[5]),
		caseQty:   caseQty,
	}
	if r.sku == "" || r.title == "" || unitPrice.GreaterThan(msrp) {
		return record{}, false
	}
	return r, true
}

// writeCatalog assembles the document, validates it, and writes it out.
func writeCatalog(out, companyName string, minOrder decimal.Decimal, currency string, products []catalog.Product) error {
	p := &catalog.Payload{
		FormatVersion: "1",
		GeneratedAt:   time.Now().UTC().Truncate(time.Second),
		Company: catalog.Company{
			Name:         companyName,
			MinimumOrder: minOrder,
			Currency:     currency,
		},
		Customer: catalog.Customer{
			ID:   "default",
			Name: "Retail Baseline",
			Tier: "standard",
		},
		Products: products,
	}
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "validate assembled catalog")
	}

	if err := os.WriteFile(out, codec.MarshalPayload(p), 0o644); err != nil {
		return errors.Wrap(err, "write catalog")
	}

	slog.Info("catalog written", slog.String("path", out), slog.Int("products", len(products)))
	return nil
}
