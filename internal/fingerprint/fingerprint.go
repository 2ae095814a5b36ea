// Package fingerprint derives device identifiers from rendering output and
// declarative device attributes.
package fingerprint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/language"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/provider"
)

// DefaultTimeout bounds rendering and the environment read.
const DefaultTimeout = 2 * time.Second

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fingerprinter) {
		f.logger = logger
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fingerprinter) {
		f.timeout = d
	}
}

// Fingerprinter builds a model.DeviceFingerprint. It never uses the network.
type Fingerprinter struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Fingerprinter.
func New(opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fingerprint reads the environment and renders the test image.
// A failed render yields model.CanvasUnavailable; a failed environment read
// yields empty attributes. Neither fails the fingerprint.
func (f *Fingerprinter) Fingerprint(ctx context.Context, caps capability.Set) model.DeviceFingerprint {
	caps = caps.Normalize()

	fp := model.DeviceFingerprint{
		CanvasHash: model.CanvasUnavailable,
		Languages:  []string{},
	}

	if data, err := provider.Bounded(ctx, f.timeout, caps.Renderer.Render); err != nil {
		f.logger.Debug("canvas rendering unavailable", "error", err)
	} else if len(data) > 0 {
		fp.CanvasHash = CanvasHash(data)
	}

	env, err := provider.Bounded(ctx, f.timeout, caps.Environment.Environment)
	if err != nil {
		f.logger.Debug("environment unavailable", "error", err)
	} else {
		fp.Screen = env.Screen
		fp.Timezone = env.Timezone
		fp.Platform = env.Platform
		fp.HardwareConcurrency = env.HardwareConcurrency
		fp.CookieEnabled = env.CookieEnabled
		fp.DoNotTrack = env.DoNotTrack
		fp.UserAgent = env.UserAgent
		if env.DeviceMemory != nil {
			v := *env.DeviceMemory
			fp.DeviceMemory = &v
		}
		fp.Languages = CanonicalLanguages(env.Language, env.Languages)
		if len(fp.Languages) > 0 {
			fp.Language = fp.Languages[0]
		}
	}

	fp.Digest = Digest(fp)
	f.logger.Debug("device fingerprinted", "canvas_hash", fp.CanvasHash, "digest", fp.Digest)
	return fp
}

// CanvasHash is the 32-bit rolling hash h = h*31 + b over data, formatted
// as 8 lowercase hex digits.
func CanvasHash(data []byte) string {
	var h uint32
	for _, b := range data {
		h = (h << 5) - h + uint32(b)
	}
	return fmt.Sprintf("%08x", h)
}

// CanonicalLanguages returns the device languages as canonical BCP 47 tags,
// de-duplicated, in preference order. primary is used when langs is empty.
// Tags that do not parse are dropped.
func CanonicalLanguages(primary string, langs []string) []string {
	if len(langs) == 0 && primary != "" {
		langs = []string{primary}
	}
	out := make([]string, 0, len(langs))
	seen := make(map[string]bool, len(langs))
	for _, raw := range langs {
		tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-"))
		if err != nil || tag == language.Und {
			continue
		}
		s := tag.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Digest is BLAKE2b-256 over the canonical attribute tuple, truncated to
// 16 bytes and hex encoded. It does not depend on the network, so it stays
// stable when the visitor changes IP address.
func Digest(fp model.DeviceFingerprint) string {
	memory := ""
	if fp.DeviceMemory != nil {
		memory = strconv.FormatFloat(*fp.DeviceMemory, 'f', -1, 64)
	}
	fields := []string{
		fp.CanvasHash,
		strconv.Itoa(fp.Screen.Width),
		strconv.Itoa(fp.Screen.Height),
		strconv.Itoa(fp.Screen.ColorDepth),
		strconv.FormatFloat(fp.Screen.PixelRatio, 'f', -1, 64),
		fp.Timezone,
		strings.Join(fp.Languages, ","),
		fp.Platform,
		strconv.Itoa(fp.HardwareConcurrency),
		memory,
		fp.UserAgent,
	}
	sum := blake2b.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

// SameDevice reports whether two fingerprints are likely the same device:
// equal digests, or equal canvas hashes when rendering was available on both.
func SameDevice(a, b model.DeviceFingerprint) bool {
	if a.Digest != "" && a.Digest == b.Digest {
		return true
	}
	return a.CanvasHash != model.CanvasUnavailable && a.CanvasHash != "" && a.CanvasHash == b.CanvasHash
}
