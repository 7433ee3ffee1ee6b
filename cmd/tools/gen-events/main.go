// Command gen-events writes synthetic event fixture files for dev runs and
// tests of the analysis pipeline.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/collider.report/internal/analysis/source"
)

func main() {
	outDir := flag.String("o", "fixtures", "output directory")
	files := flag.Int("files", 1, "number of fixture files")
	events := flag.Int("n", 1000, "events per file")
	seed := flag.Uint64("seed", 1, "base generator seed")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	for i := 0; i < *files; i++ {
		path := filepath.Join(*outDir, fmt.Sprintf("events-%03d.json", i))
		batch := source.Generate(*events, *seed+uint64(i))
		if err := source.WriteFixture(path, batch); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("✓ Created: %s (%d events)", path, batch.Events())
	}
}
