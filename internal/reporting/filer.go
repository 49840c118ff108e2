package reporting

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"verigate/internal/platform/storage"
	"verigate/internal/reporting/metrics"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/domain"
)

// ChunkSize is the fixed block size for chunked report storage.
const ChunkSize = 4096

// Filer creates and maintains report upload status and chunked content for
// submitted report packages. Callers must have confirmed the submitter's
// authorization before Create; the filer performs no authorization checks.
type Filer struct {
	store      *storage.Store
	stats      storage.Cell
	status     storage.Set
	chunks     storage.Chunks
	submitters storage.Set

	// mu serializes index mutation. Set ordinals are allocated by scanning
	// current state, so two batch builds staged for the same set key would
	// claim the same ordinal and the second commit would overwrite the
	// first member.
	mu sync.Mutex

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// FilerOption configures a Filer.
type FilerOption func(*Filer)

// WithFilerLogger configures a logger for the filer.
func WithFilerLogger(logger *slog.Logger) FilerOption {
	return func(f *Filer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFilerMetrics configures Prometheus collectors for the filer.
func WithFilerMetrics(m *metrics.Metrics) FilerOption {
	return func(f *Filer) {
		f.metrics = m
	}
}

// NewFiler constructs a Filer over the shared store.
func NewFiler(store *storage.Store, opts ...FilerOption) *Filer {
	f := &Filer{
		store:      store,
		stats:      store.Cell(storage.PrefixStats),
		status:     store.Set(storage.PrefixStatus),
		chunks:     store.Chunks(storage.PrefixChunks),
		submitters: store.Set(storage.PrefixSubmitters),
		logger:     slog.Default(),
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Create stores a new upload with initial accepted status. Any chunks from a
// previous upload of the same digest are cleared first so a shorter re-upload
// cannot leave stale tail chunks behind; a digest that had already reached a
// terminal status returns to accepted and is swept again.
func (f *Filer) Create(aid domain.AID, dig domain.SAID, filename, contentType string, stream io.Reader) error {
	key := []byte(dig)
	if err := f.chunks.DeleteAll(key); err != nil {
		return err
	}

	stats := ReportStats{
		Submitter:   aid,
		Filename:    filename,
		Status:      StatusAccepted,
		ContentType: contentType,
	}

	buf := make([]byte, ChunkSize)
	var index uint64
	for {
		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			if putErr := f.chunks.Put(key, index, buf[:n]); putErr != nil {
				return putErr
			}
			index++
			stats.Size += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "reading upload stream")
		}
	}

	encoded, err := json.Marshal(stats)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encoding report stats")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Stats record, status index entry and submitter index entry land
	// together so no reader observes a report in a partial state. A
	// resubmission of a digest that already reached a terminal status
	// leaves that status set in the same batch, keeping the digest in
	// exactly one set.
	b := &storage.Batch{}
	prev, found, err := f.Get(dig)
	if err != nil {
		return err
	}
	if found && prev.Status != StatusAccepted {
		if _, err := f.status.RemBatch(b, []byte(prev.Status), key); err != nil {
			return err
		}
	}
	f.stats.PutBatch(b, key, encoded)
	if _, err := f.status.AddBatch(b, []byte(StatusAccepted), key); err != nil {
		return err
	}
	if _, err := f.submitters.AddBatch(b, []byte(aid), key); err != nil {
		return err
	}
	if err := f.store.Write(b); err != nil {
		return err
	}

	f.metrics.ReportsAccepted.Inc()
	f.metrics.BytesIngested.Add(float64(stats.Size))
	f.logger.Info("report accepted",
		"digest", dig,
		"submitter", aid,
		"filename", filename,
		"size", stats.Size,
	)
	return nil
}

// Get returns report stats for the given digest, or found=false.
func (f *Filer) Get(dig domain.SAID) (ReportStats, bool, error) {
	raw, found, err := f.stats.Get([]byte(dig))
	if err != nil || !found {
		return ReportStats{}, false, err
	}
	var stats ReportStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return ReportStats{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "decoding report stats")
	}
	return stats, true, nil
}

// GetData returns a reader over the stored chunks for dig. The reader yields
// chunks in index order and reports EOF at the first missing index, so it is
// restartable by calling GetData again.
func (f *Filer) GetData(dig domain.SAID) io.Reader {
	return &chunkReader{chunks: f.chunks, id: []byte(dig)}
}

type chunkReader struct {
	chunks storage.Chunks
	id     []byte
	index  uint64
	rest   []byte
	done   bool
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.done {
			return 0, io.EOF
		}
		chunk, found, err := r.chunks.Get(r.id, r.index)
		if err != nil {
			r.err = err
			return 0, err
		}
		if !found {
			r.done = true
			return 0, io.EOF
		}
		r.index++
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

// GetAcceptedDigests returns a snapshot of digests currently in accepted
// status. Digests moved by a concurrent sweep after the snapshot are not
// reflected.
func (f *Filer) GetAcceptedDigests() ([]domain.SAID, error) {
	members, err := f.status.Members([]byte(StatusAccepted))
	if err != nil {
		return nil, err
	}
	digs := make([]domain.SAID, 0, len(members))
	for _, m := range members {
		digs = append(digs, domain.SAID(m))
	}
	return digs, nil
}

// ByAID returns the digests of all reports uploaded by aid, oldest first.
func (f *Filer) ByAID(aid domain.AID) ([]domain.SAID, error) {
	members, err := f.submitters.Members([]byte(aid))
	if err != nil {
		return nil, err
	}
	digs := make([]domain.SAID, 0, len(members))
	for _, m := range members {
		digs = append(digs, domain.SAID(m))
	}
	return digs, nil
}

// Update transitions the report to status, optionally replacing the status
// message. The status-index move and the stats rewrite are applied in one
// batch so readers never observe a digest in two status sets or in none.
// Returns false when no stats exist for dig.
func (f *Filer) Update(dig domain.SAID, status Status, msg string) (bool, error) {
	if !status.Valid() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "unknown report status "+string(status))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stats, found, err := f.Get(dig)
	if err != nil || !found {
		return false, err
	}

	key := []byte(dig)
	b := &storage.Batch{}

	// The index move is skipped for a same-status update; the existing
	// entry already satisfies the one-set invariant.
	moved := status != stats.Status
	if moved {
		if _, err := f.status.RemBatch(b, []byte(stats.Status), key); err != nil {
			return false, err
		}
	}

	stats.Status = status
	if msg != "" {
		stats.Message = msg
	}
	encoded, err := json.Marshal(stats)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "encoding report stats")
	}
	f.stats.PutBatch(b, key, encoded)

	if moved {
		if _, err := f.status.AddBatch(b, []byte(status), key); err != nil {
			return false, err
		}
	}
	if err := f.store.Write(b); err != nil {
		return false, err
	}
	return true, nil
}
