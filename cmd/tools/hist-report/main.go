// Command hist-report renders the stored histograms of an analysis run:
// per-region PNG overlays of the nominal process histograms via hplot, and an
// HTML page of per-process variation bar charts via go-echarts.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"

	storage "github.com/banshee-data/collider.report/internal/analysis/storage/sqlite"
	"github.com/banshee-data/collider.report/internal/db"
)

var (
	dbPath = flag.String("db", "analysis_results.db", "SQLite results database")
	runID  = flag.String("run", "", "run ID to report on (empty uses the most recent run)")
	outDir = flag.String("o", "report", "output directory")
)

func main() {
	flag.Parse()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	runStore := storage.NewRunStore(database.DB)
	histStore := storage.NewHistogramStore(database.DB)

	run, err := resolveRun(runStore, *runID)
	if err != nil {
		log.Fatalf("Failed to resolve run: %v", err)
	}
	log.Printf("Reporting on run %s (%s, %d events)", run.RunID, run.Status, run.Events)

	hists, err := histStore.ListByRun(run.RunID)
	if err != nil {
		log.Fatalf("Failed to load histograms: %v", err)
	}
	if len(hists) == 0 {
		log.Fatalf("Run %s has no histograms", run.RunID)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	for _, region := range regions(hists) {
		path := filepath.Join(*outDir, fmt.Sprintf("%s_nominal.png", region))
		if err := renderNominalPNG(path, region, hists); err != nil {
			log.Fatalf("Failed to render %s: %v", path, err)
		}
		log.Printf("✓ Created: %s", path)
	}

	htmlPath := filepath.Join(*outDir, "variations.html")
	if err := renderVariationsHTML(htmlPath, run.RunID, hists); err != nil {
		log.Fatalf("Failed to render %s: %v", htmlPath, err)
	}
	log.Printf("✓ Created: %s", htmlPath)
}

func resolveRun(store *storage.RunStore, id string) (*storage.AnalysisRun, error) {
	if id != "" {
		return store.Get(id)
	}
	runs, err := store.List(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded")
	}
	return runs[0], nil
}

func regions(hists []*storage.Histogram) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range hists {
		if !seen[h.Region] {
			seen[h.Region] = true
			out = append(out, h.Region)
		}
	}
	sort.Strings(out)
	return out
}

// renderNominalPNG overlays the nominal histogram of every process in one
// region. Bins are reloaded by filling each center with the stored sum, so
// the drawn contents match the persisted values exactly.
func renderNominalPNG(path, region string, hists []*storage.Histogram) error {
	p := hplot.New()
	p.Title.Text = fmt.Sprintf("Region %s (nominal)", region)
	p.X.Label.Text = "observable [GeV]"
	p.Y.Label.Text = "weighted events"

	added := 0
	for _, h := range hists {
		if h.Region != region || h.Variation != "nominal" {
			continue
		}
		hist, err := rebuildH1D(h)
		if err != nil {
			return err
		}
		line := hplot.NewH1D(hist)
		p.Add(line)
		p.Legend.Add(h.Process, line)
		added++
	}
	if added == 0 {
		return fmt.Errorf("region %s has no nominal histograms", region)
	}

	p.Legend.Top = true
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func rebuildH1D(h *storage.Histogram) (*hbook.H1D, error) {
	if len(h.Contents) != h.Bins {
		return nil, fmt.Errorf("histogram %s/%s/%s: %d contents for %d bins",
			h.Region, h.Process, h.Variation, len(h.Contents), h.Bins)
	}
	hist := hbook.NewH1D(h.Bins, h.Low, h.High)
	width := (h.High - h.Low) / float64(h.Bins)
	for i, sum := range h.Contents {
		center := h.Low + (float64(i)+0.5)*width
		hist.Fill(center, sum)
	}
	return hist, nil
}

// renderVariationsHTML writes one bar chart per (region, process) with a
// series per variation, grouped on a single page.
func renderVariationsHTML(path, runID string, hists []*storage.Histogram) error {
	grouped := make(map[[2]string][]*storage.Histogram)
	var order [][2]string
	for _, h := range hists {
		key := [2]string{h.Region, h.Process}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], h)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i][0] != order[j][0] {
			return order[i][0] < order[j][0]
		}
		return order[i][1] < order[j][1]
	})

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Run %s variations", runID)

	for _, key := range order {
		group := grouped[key]
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    fmt.Sprintf("%s / %s", key[0], key[1]),
				Subtitle: fmt.Sprintf("%d variations", len(group)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		)

		bar.SetXAxis(binLabels(group[0]))
		for _, h := range group {
			data := make([]opts.BarData, len(h.Contents))
			for i, v := range h.Contents {
				data[i] = opts.BarData{Value: v}
			}
			bar.AddSeries(h.Variation, data)
		}
		page.AddCharts(bar)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func binLabels(h *storage.Histogram) []string {
	edges := h.BinEdges()
	labels := make([]string, h.Bins)
	for i := 0; i < h.Bins; i++ {
		labels[i] = fmt.Sprintf("%.0f-%.0f", edges[i], edges[i+1])
	}
	return labels
}
