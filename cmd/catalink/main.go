// Command catalink encodes catalog documents into shareable transport strings
// and decodes transport strings back into readable documents.
//
// Usage:
//
//	catalink encode -in catalog.json            # print transport string
//	catalink decode -in link.txt                # print canonical document
//	catalink decode -in link.txt -summary      # print a human summary instead
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(os.Args[2:])
	case "decode":
		err = runDecode(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("catalink failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: catalink <encode|decode> [flags]")
}

// readInput reads the whole input: the named file, or stdin when path is "-"
// or empty.
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	in := fs.String("in", "-", "catalog document to encode (- for stdin)")
	_ = fs.Parse(args)

	doc, err := readInput(*in)
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	p, err := codec.DecodeDocument(doc)
	if err != nil {
		return errors.Wrap(err, "parse document")
	}

	var c codec.Codec
	transport, err := c.Encode(p)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	fmt.Println(transport)
	return nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "-", "transport string to decode (- for stdin)")
	summary := fs.Bool("summary", false, "print a human summary instead of the document")
	_ = fs.Parse(args)

	raw, err := readInput(*in)
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	var c codec.Codec
	p, err := c.Decode(strings.TrimSpace(string(raw)))
	if err != nil {
		return errors.Wrap(err, "decode")
	}

	if *summary {
		printSummary(p)
		return nil
	}

	// Re-indent the canonical form for human eyes.
	var buf map[string]any
	if err := json.Unmarshal(codec.MarshalPayload(p), &buf); err != nil {
		return errors.Wrap(err, "reformat document")
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "reformat document")
	}
	fmt.Println(string(out))
	return nil
}

func printSummary(p *catalog.Payload) {
	fmt.Printf("company:   %s (%s, minimum order %s)\n",
		p.Company.Name, p.Company.Currency, p.Company.MinimumOrder)
	fmt.Printf("customer:  %s (%s, tier %s)\n",
		p.Customer.Name, p.Customer.ID, p.Customer.Tier)
	fmt.Printf("generated: %s\n", p.GeneratedAt.UTC())
	switch catalog.Classify(p, time.Now()) {
	case catalog.Expired:
		fmt.Printf("expires:   %s (EXPIRED)\n", p.ExpiresAt.UTC())
	case catalog.Fresh:
		fmt.Printf("expires:   %s\n", p.ExpiresAt.UTC())
	case catalog.Unversioned:
		fmt.Println("expires:   never (unversioned)")
	}
	fmt.Printf("products:  %d\n", len(p.Products))
	for i := range p.Products {
		pr := &p.Products[i]
		fmt.Printf("  %-10s %-40s %8s  (msrp %s, margin %s%%)\n",
			pr.SKU, pr.Title, pr.UnitPrice.StringFixed(2), pr.MSRP.StringFixed(2), pr.MarginPercent)
	}
}
