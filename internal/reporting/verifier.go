package reporting

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"verigate/internal/keri"
	"verigate/internal/reporting/metrics"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/domain"
)

const (
	metaInfDir   = "META-INF"
	reportsDir   = "reports"
	manifestName = "reports.json"
)

// Verifier is the background worker that sweeps reports in accepted status,
// validates each package's manifest signatures against the submitter's key
// state and resolves the report to a terminal verified or failed status.
type Verifier struct {
	filer    *Filer
	resolver keri.KeyStateResolver
	interval time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierInterval overrides the sweep interval when greater than zero.
func WithVerifierInterval(interval time.Duration) VerifierOption {
	return func(v *Verifier) {
		if interval > 0 {
			v.interval = interval
		}
	}
}

// WithVerifierLogger configures a logger for the worker.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithVerifierMetrics configures Prometheus collectors for the worker.
func WithVerifierMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// NewVerifier constructs the verification worker.
func NewVerifier(filer *Filer, resolver keri.KeyStateResolver, opts ...VerifierOption) (*Verifier, error) {
	if filer == nil || resolver == nil {
		return nil, fmt.Errorf("filer and resolver are required")
	}
	v := &Verifier{
		filer:    filer,
		resolver: resolver,
		interval: time.Second,
		logger:   slog.Default(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		tracer:   otel.Tracer("verigate/reporting"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Start runs verification sweeps periodically until ctx is cancelled.
func (v *Verifier) Start(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := v.RunOnce(ctx); err != nil {
				v.logger.ErrorContext(ctx, "verification sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// VerifySweepResult summarizes one verification sweep.
type VerifySweepResult struct {
	Verified int
	Failed   int
}

// RunOnce processes every report currently in accepted status. Each report is
// handled independently; validation failures become failed status rather than
// sweep errors, so one bad package never blocks the rest.
func (v *Verifier) RunOnce(ctx context.Context) (VerifySweepResult, error) {
	ctx, span := v.tracer.Start(ctx, "reporting.sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		v.metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	var res VerifySweepResult
	digs, err := v.filer.GetAcceptedDigests()
	if err != nil {
		return res, err
	}

	for _, dig := range digs {
		stats, found, err := v.filer.Get(dig)
		if err != nil || !found {
			v.logger.ErrorContext(ctx, "accepted report has no stats", "digest", dig, "error", err)
			continue
		}
		v.logger.InfoContext(ctx, "processing report",
			"digest", dig,
			"filename", stats.Filename,
			"content_type", stats.ContentType,
			"size", stats.Size,
		)

		msg, err := v.verify(dig, stats)
		if err != nil {
			v.fail(ctx, dig, err)
			res.Failed++
			continue
		}
		if _, err := v.filer.Update(dig, StatusVerified, msg); err != nil {
			v.logger.ErrorContext(ctx, "updating report status", "digest", dig, "error", err)
			continue
		}
		v.metrics.ReportsVerified.Inc()
		v.logger.InfoContext(ctx, "report verified", "digest", dig, "message", msg)
		res.Verified++
	}
	return res, nil
}

func (v *Verifier) fail(ctx context.Context, dig domain.SAID, cause error) {
	if _, err := v.filer.Update(dig, StatusFailed, cause.Error()); err != nil {
		v.logger.ErrorContext(ctx, "updating report status", "digest", dig, "error", err)
		return
	}
	v.metrics.ReportsFailed.Inc()
	v.logger.InfoContext(ctx, "report failed", "digest", dig, "reason", cause.Error())
}

// verify validates one report package end to end and returns the verified
// status message. Every returned error is a validation outcome destined for
// failed status, never a fault to propagate.
func (v *Verifier) verify(dig domain.SAID, stats ReportStats) (string, error) {
	data, err := io.ReadAll(v.filer.GetData(dig))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "reading report content")
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "not a valid zip archive")
	}

	root, manifest, err := findManifest(archive)
	if err != nil {
		return "", err
	}
	if manifest.DocumentInfo == nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid manifest file in report package, missing 'documentInfo'")
	}
	if manifest.DocumentInfo.Signatures == nil {
		return "", dErrors.New(dErrors.CodeValidation, "no signatures found in manifest file")
	}

	files := listDir(archive, root+reportsDir+"/")

	signed := make(map[string]struct{})
	for _, entry := range *manifest.DocumentInfo.Signatures {
		base, err := v.verifyEntry(archive, root, entry, stats.Submitter)
		if err != nil {
			return "", err
		}
		if base != "" {
			signed[base] = struct{}{}
		}
	}

	var unsigned []string
	for name := range files {
		if _, ok := signed[name]; !ok {
			unsigned = append(unsigned, name)
		}
	}
	if len(unsigned) > 0 {
		sort.Strings(unsigned)
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf(
			"%d files from report package not signed %v", len(unsigned), unsigned))
	}

	return fmt.Sprintf("All %d files in report package have been signed by submitter (%s).",
		len(files), stats.Submitter), nil
}

// verifyEntry validates a single manifest signature entry. It returns the
// signed file's base name on success, or "" when the entry belongs to a
// different signer and is skipped.
func (v *Verifier) verifyEntry(archive *zip.Reader, root string, entry SignatureEntry, submitter domain.AID) (string, error) {
	if entry.File == "" {
		return "", dErrors.New(dErrors.CodeValidation, "invalid signature in manifest signature list, missing 'file'")
	}
	if entry.AID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "invalid signature in manifest signature list, missing 'aid'")
	}

	// Manifest paths are relative to META-INF.
	fullpath := path.Clean(path.Join(root+metaInfDir, entry.File))
	base := path.Base(fullpath)

	ser, err := readFile(archive, fullpath)
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "signature element points to invalid file "+fullpath)
	}

	// Only the submitter's own signatures count toward completeness;
	// other signers' entries are ignored, not rejected.
	if domain.AID(entry.AID) != submitter {
		return "", nil
	}

	state, found := v.resolver.KeyState(domain.AID(entry.AID))
	if !found {
		return "", dErrors.New(dErrors.CodeValidation, "signature from unknown AID "+entry.AID)
	}

	if len(entry.Sigs) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "missing signatures on "+entry.File)
	}

	for _, qb64 := range entry.Sigs {
		sig, err := keri.ParseIndexedSig(qb64)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeValidation, "unparseable signature on "+entry.File)
		}
		if !state.Verify(sig.Index, sig.Raw, ser) {
			return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf(
				"signature %d invalid for %s", sig.Index, entry.File))
		}
	}
	return base, nil
}

// findManifest locates the package root: the first directory, in sorted
// traversal order, containing both a META-INF directory with reports.json and
// a reports directory. Archives with multiple candidate roots are tolerated
// by taking the first; such packages are unsupported rather than rejected.
func findManifest(archive *zip.Reader) (string, Manifest, error) {
	dirs := make(map[string]struct{})
	names := make(map[string]struct{})
	for _, f := range archive.File {
		names[f.Name] = struct{}{}
		for d := path.Dir(f.Name); d != "." && d != "/"; d = path.Dir(d) {
			dirs[d] = struct{}{}
		}
		if strings.HasSuffix(f.Name, "/") {
			dirs[strings.TrimSuffix(f.Name, "/")] = struct{}{}
		}
	}

	var candidates []string
	for d := range dirs {
		if path.Base(d) != metaInfDir {
			continue
		}
		root := strings.TrimSuffix(d, metaInfDir) // "" for archive root, else "top/"
		if _, ok := dirs[root+reportsDir]; !ok {
			continue
		}
		if _, ok := names[root+metaInfDir+"/"+manifestName]; !ok {
			continue
		}
		candidates = append(candidates, root)
	}
	if len(candidates) == 0 {
		return "", Manifest{}, dErrors.New(dErrors.CodeValidation, "no manifest in file, invalid signed report package")
	}
	sort.Strings(candidates)
	root := candidates[0]

	raw, err := readFile(archive, root+metaInfDir+"/"+manifestName)
	if err != nil {
		return "", Manifest{}, dErrors.New(dErrors.CodeValidation, "no manifest in file, invalid signed report package")
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return "", Manifest{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed manifest file in report package")
	}
	return root, manifest, nil
}

// listDir returns the immediate child names under prefix, files and
// directories alike.
func listDir(archive *zip.Reader, prefix string) map[string]struct{} {
	children := make(map[string]struct{})
	for _, f := range archive.File {
		if !strings.HasPrefix(f.Name, prefix) || f.Name == prefix {
			continue
		}
		rest := strings.TrimPrefix(f.Name, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			children[rest] = struct{}{}
		}
	}
	return children
}

func readFile(archive *zip.Reader, name string) ([]byte, error) {
	f, err := archive.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
