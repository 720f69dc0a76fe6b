package main

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/drummonds/pdfbridge/client"
	"github.com/drummonds/pdfbridge/internal/build"
	"github.com/drummonds/pdfbridge/raster"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run holds the whole command so main can turn its result into an exit
// code. 0 success, 1 render failure, 2 usage error.
func run(args []string) int {
	flags := pflag.NewFlagSet("render", pflag.ContinueOnError)
	width := flags.IntP("width", "w", 1024, "output width in pixels")
	pagesSpec := flags.StringP("pages", "p", "", "pages to render, 1-based, e.g. \"1-3,7\" (default all)")
	outDir := flags.StringP("out", "o", ".", "output directory")
	info := flags.Bool("info", false, "print page count and sizes instead of rendering")
	server := flags.String("server", "", "render through a pdfbridge service at this URL")
	version := flags.Bool("version", false, "print version")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: render [flags] input.pdf\n\nFlags:\n%s", flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if *version {
		fmt.Println("render " + build.Version)
		return 0
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}
	pdfPath := flags.Arg(0)

	if *width <= 0 {
		fmt.Fprintln(os.Stderr, "width must be positive")
		return 2
	}

	if *server != "" {
		return runRemote(*server, pdfPath, *pagesSpec, *width, *outDir, *info)
	}
	return runLocal(pdfPath, *pagesSpec, *width, *outDir, *info)
}

// runLocal renders with an in-process engine
func runLocal(pdfPath string, pagesSpec string, width int, outDir string, info bool) int {
	eng, err := raster.NewEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start PDF engine: %v\n", err)
		return 1
	}
	defer eng.Close()

	doc, err := eng.Open(pdfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", pdfPath, err)
		return 1
	}
	defer doc.Close()

	pageCount, err := doc.PageCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read page count: %v\n", err)
		return 1
	}

	if info {
		fmt.Printf("%s: %d pages\n", filepath.Base(pdfPath), pageCount)
		for i := 0; i < pageCount; i++ {
			w, h, err := doc.PageSize(i)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to read size of page %d: %v\n", i+1, err)
				return 1
			}
			fmt.Printf("  page %d: %.1f x %.1f pt\n", i+1, w, h)
		}
		return 0
	}

	pages, err := parsePages(pagesSpec, pageCount)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		return 1
	}

	for _, pageIndex := range pages {
		bmp, err := doc.RenderPage(pageIndex, width)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render page %d: %v\n", pageIndex+1, err)
			return 1
		}

		outPath := filepath.Join(outDir, fmt.Sprintf("page-%04d.png", pageIndex+1))
		if err := writePNG(outPath, bmp); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write page %d: %v\n", pageIndex+1, err)
			return 1
		}
		fmt.Printf("wrote %s (%dx%d)\n", outPath, bmp.Width, bmp.Height)
	}

	return 0
}

// runRemote renders through a pdfbridge service, downloading the wanted
// pages from a batch render job
func runRemote(serverURL string, pdfPath string, pagesSpec string, width int, outDir string, info bool) int {
	cl := client.New(serverURL)

	if info {
		docInfo, err := cl.GetDocumentInfo(pdfPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to inspect %s: %v\n", pdfPath, err)
			return 1
		}
		fmt.Printf("%s: %d pages\n", docInfo.Filename, docInfo.PageCount)
		for _, page := range docInfo.Pages {
			fmt.Printf("  page %d: %.1f x %.1f pt\n", page.Index+1, page.Width, page.Height)
		}
		return 0
	}

	created, err := cl.CreateRender(pdfPath, width)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start remote render: %v\n", err)
		return 1
	}
	fmt.Printf("render job %s started on %s\n", created.JobID, serverURL)

	job, err := cl.WaitForJob(created.JobID, 500*time.Millisecond, 5*time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remote render did not finish: %v\n", err)
		return 1
	}
	if job.Status != "completed" {
		fmt.Fprintf(os.Stderr, "remote render %s: %s\n", job.Status, job.Error)
		return 1
	}

	pages, err := parsePages(pagesSpec, job.PageCount)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		return 1
	}

	for _, pageIndex := range pages {
		data, err := cl.GetRenderedPage(created.JobID, pageIndex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to fetch page %d: %v\n", pageIndex+1, err)
			return 1
		}

		outPath := filepath.Join(outDir, fmt.Sprintf("page-%04d.png", pageIndex+1))
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write page %d: %v\n", pageIndex+1, err)
			return 1
		}
		fmt.Printf("wrote %s\n", outPath)
	}

	// The downloaded pages are all we wanted from the server
	if err := cl.DeleteRender(created.JobID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to delete remote render: %v\n", err)
	}

	return 0
}

// parsePages expands a 1-based page list like "1-3,7" into sorted zero
// based page indexes. An empty spec selects every page.
func parsePages(spec string, pageCount int) ([]int, error) {
	if spec == "" {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i
		}
		return pages, nil
	}

	selected := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("invalid page list %q", spec)
		}

		first, last := part, part
		if idx := strings.Index(part, "-"); idx >= 0 {
			first, last = part[:idx], part[idx+1:]
		}

		start, err := strconv.Atoi(first)
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", first)
		}
		end, err := strconv.Atoi(last)
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", last)
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("invalid page range %q", part)
		}
		if end > pageCount {
			return nil, fmt.Errorf("page %d is beyond the document (%d pages)", end, pageCount)
		}

		for p := start; p <= end; p++ {
			selected[p-1] = true
		}
	}

	pages := make([]int, 0, len(selected))
	for p := range selected {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

// writePNG encodes a rendered page to a PNG file
func writePNG(path string, bmp *raster.Bitmap) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	err = png.Encode(out, bmp.Image())
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
