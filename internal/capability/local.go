package capability

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without a zoneinfo database
)

// Local returns the capabilities of the host running the binary.
// Environment, ICE (interface addresses) and rendering are available;
// positioning, radio scans and connection metadata are Unsupported.
func Local() Set {
	return Set{
		ICE:         InterfaceGatherer{},
		Renderer:    RasterRenderer{},
		Environment: HostEnvironment{},
	}.Normalize()
}

// HostEnvironment reads device attributes from the operating system and the
// Go runtime.
type HostEnvironment struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Environment implements EnvironmentReader.
func (h HostEnvironment) Environment(ctx context.Context) (Environment, error) {
	if err := ctx.Err(); err != nil {
		return Environment{}, err
	}
	getenv := h.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	langs := localeLanguages(getenv)
	env := Environment{
		Timezone:            hostTimezone(getenv),
		Languages:           langs,
		Platform:            runtime.GOOS + "/" + runtime.GOARCH,
		HardwareConcurrency: runtime.NumCPU(),
		CookieEnabled:       false,
		DoNotTrack:          getenv("DO_NOT_TRACK") == "1",
		UserAgent:           fmt.Sprintf("linkforensics (%s; %s)", runtime.GOOS, runtime.GOARCH),
	}
	if len(langs) > 0 {
		env.Language = langs[0]
	}
	return env, nil
}

// localeLanguages derives language tags from LANGUAGE, LC_ALL and LANG.
// "en_US.UTF-8" becomes "en-US"; "C" and "POSIX" are ignored.
func localeLanguages(getenv func(string) string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if i := strings.IndexAny(raw, ".@"); i >= 0 {
			raw = raw[:i]
		}
		if raw == "" || raw == "C" || raw == "POSIX" {
			return
		}
		tag := strings.ReplaceAll(raw, "_", "-")
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	for _, part := range strings.Split(getenv("LANGUAGE"), ":") {
		add(part)
	}
	add(getenv("LC_ALL"))
	add(getenv("LANG"))
	return out
}

// hostTimezone returns the IANA name of the host timezone.
// It consults TZ, then the /etc/localtime link, then the Go runtime.
func hostTimezone(getenv func(string) string) string {
	if tz := strings.TrimPrefix(getenv("TZ"), ":"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
	}
	if name := time.Local.String(); name != "Local" {
		return name
	}
	return "UTC"
}

// InterfaceGatherer produces host candidates from the addresses of the
// host's network interfaces.
type InterfaceGatherer struct{}

// GatherCandidates implements ICEGatherer.
func (InterfaceGatherer) GatherCandidates(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	candidates := make([]string, 0, len(addrs))
	for i, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		candidates = append(candidates,
			fmt.Sprintf("candidate:%d 1 udp 2122260223 %s 9 typ host", i+1, ipNet.IP.String()))
	}
	return candidates, nil
}

// Raster dimensions of the test image.
const (
	rasterWidth  = 220
	rasterHeight = 30
)

// RasterRenderer draws a fixed test pattern offscreen and PNG-encodes it.
type RasterRenderer struct{}

// Render implements Renderer.
func (RasterRenderer) Render(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, rasterWidth, rasterHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}}, image.Point{}, draw.Src)

	// Opaque blocks first, translucent overlays composited over them.
	fillRect(img, image.Rect(125, 1, 187, 21), color.RGBA{R: 0xf6, G: 0x60, B: 0x00, A: 0xff})
	fillRect(img, image.Rect(2, 15, 120, 28), color.NRGBA{R: 0x00, G: 0x66, B: 0x99, A: 0xff})
	fillRect(img, image.Rect(4, 17, 160, 29), color.NRGBA{R: 0x66, G: 0xcc, B: 0x00, A: 0xb3})
	fillRect(img, image.Rect(100, 4, 210, 14), color.NRGBA{R: 0xff, G: 0x00, B: 0xff, A: 0x80})

	// Horizontal gradient band.
	for x := 0; x < rasterWidth; x++ {
		shade := uint8(x * 255 / (rasterWidth - 1))
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: 0x40, B: 255 - shade, A: 0xff})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode raster: %w", err)
	}
	return buf.Bytes(), nil
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, &image.Uniform{C: c}, image.Point{}, draw.Over)
}
