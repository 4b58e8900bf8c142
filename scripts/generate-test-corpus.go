//go:build ignore

// Package main generates a synthetic PDF corpus for benchmarking the
// ingestion pipeline.
// Usage: go run scripts/generate-test-corpus.go -docs 200 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfmcp/pdfmcp/internal/pdf/pdftest"
)

var (
	numDocs   = flag.Int("docs", 100, "Number of PDF documents to generate")
	maxPages  = flag.Int("pages", 8, "Maximum pages per document")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pools for plausible product-manual prose.
var (
	products = []string{
		"inverter", "heat pump", "dishwasher", "thermostat", "router",
		"chainsaw", "espresso machine", "dehumidifier", "treadmill",
		"projector", "water heater", "air purifier", "lawn mower",
		"refrigerator", "generator", "pressure washer", "soundbar",
	}
	components = []string{
		"filter", "compressor", "control board", "power supply", "fan",
		"pump", "display panel", "sensor", "valve", "battery pack",
		"drive belt", "heating element", "gasket", "impeller", "relay",
	}
	actions = []string{
		"inspect", "replace", "clean", "tighten", "lubricate",
		"calibrate", "reset", "drain", "recharge", "realign",
	}
	intervals = []string{
		"every month", "every three months", "every six months",
		"once a year", "after 500 hours of operation",
		"before seasonal storage", "after each use",
	}
	cautions = []string{
		"Disconnect the unit from mains power before servicing.",
		"Allow the unit to cool for at least 30 minutes.",
		"Wear protective gloves when handling sharp edges.",
		"Do not operate the unit with the cover removed.",
		"Use only manufacturer-approved replacement parts.",
	}
	faults = []string{
		"does not power on", "makes a grinding noise", "leaks water",
		"overheats under load", "displays error code E%d",
		"vibrates excessively", "shuts off unexpectedly",
	}
	remedies = []string{
		"check the fuse and the supply voltage",
		"remove any debris from the intake",
		"verify that all hoses are seated correctly",
		"reduce the load and retry after a cooldown period",
		"contact an authorized service center",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d PDF documents in %s...\n", *numDocs, *outputDir)

	for i := 0; i < *numDocs; i++ {
		product := products[rng.Intn(len(products))]
		pages := 1 + rng.Intn(*maxPages)

		pageTexts := make([]string, pages)
		for p := range pageTexts {
			pageTexts[p] = buildPage(rng, product, p+1)
		}

		name := fmt.Sprintf("%s-manual-%03d.pdf", strings.ReplaceAll(product, " ", "-"), i)
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, pdftest.Build(pageTexts...), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d documents.\n", *numDocs)
}

// buildPage assembles a few paragraphs of manual prose for one page.
func buildPage(rng *rand.Rand, product string, page int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Section %d. ", page)

	paragraphs := 2 + rng.Intn(3)
	for i := 0; i < paragraphs; i++ {
		switch rng.Intn(3) {
		case 0:
			fmt.Fprintf(&b, "%s the %s %s to keep the %s operating safely. ",
				capitalize(actions[rng.Intn(len(actions))]),
				components[rng.Intn(len(components))],
				intervals[rng.Intn(len(intervals))],
				product)
			b.WriteString(cautions[rng.Intn(len(cautions))])
		case 1:
			fault := faults[rng.Intn(len(faults))]
			if strings.Contains(fault, "%d") {
				fault = fmt.Sprintf(fault, 10+rng.Intn(90))
			}
			fmt.Fprintf(&b, "If the %s %s, %s. ",
				product, fault, remedies[rng.Intn(len(remedies))])
		default:
			fmt.Fprintf(&b, "The %s is rated for continuous operation at %d watts and weighs %d kilograms. ",
				product, 100+rng.Intn(2000), 2+rng.Intn(80))
		}
		b.WriteString(" ")
	}

	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
