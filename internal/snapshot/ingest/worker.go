package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/flexwatch/internal/analytics/cache"
	"github.com/smallbiznis/flexwatch/internal/clock"
	"github.com/smallbiznis/flexwatch/internal/observability/metrics"
	policydomain "github.com/smallbiznis/flexwatch/internal/policy/domain"
	"github.com/smallbiznis/flexwatch/internal/snapshot/domain"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Node       *snowflake.Node
	Repo       domain.Repository
	PolicyRepo policydomain.Repository
	Metrics    *metrics.Metrics `optional:"true"`
	Cache      *cache.Cache     `optional:"true"`
	Config     Config           `optional:"true"`
}

// Worker sweeps the raw lmstat directory and ingests files it has not
// seen before. A filesystem watcher triggers a sweep as soon as a new
// file lands; the ticker covers watch failures and missed events.
type Worker struct {
	log        *zap.Logger
	clock      clock.Clock
	node       *snowflake.Node
	repo       domain.Repository
	policyRepo policydomain.Repository
	metrics    *metrics.Metrics
	cache      *cache.Cache
	cfg        Config
}

// ScanResult summarizes one sweep of the raw directory.
type ScanResult struct {
	RunID           string `json:"run_id"`
	FilesSeen       int    `json:"files_seen"`
	FilesIngested   int    `json:"files_ingested"`
	RecordsInserted int    `json:"records_inserted"`
	LinesSkipped    int    `json:"lines_skipped"`
	Failures        int    `json:"failures"`
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:        p.Log.Named("snapshot.ingest"),
		clock:      p.Clock,
		node:       p.Node,
		repo:       p.Repo,
		policyRepo: p.PolicyRepo,
		metrics:    p.Metrics,
		cache:      p.Cache,
		cfg:        p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	events := w.watch(ctx)

	for {
		if _, err := w.ScanOnce(ctx); err != nil {
			w.log.Warn("ingest sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-events:
		}
	}
}

// watch returns a channel that fires when the raw directory changes.
// Returns a never-firing channel when the watcher cannot be set up;
// the ticker alone then drives ingestion.
func (w *Worker) watch(ctx context.Context) <-chan struct{} {
	events := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("directory watch unavailable", zap.Error(err))
		return events
	}
	if err := watcher.Add(w.cfg.RawDir); err != nil {
		w.log.Warn("directory watch unavailable",
			zap.String("dir", w.cfg.RawDir),
			zap.Error(err),
		)
		_ = watcher.Close()
		return events
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					select {
					case events <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("directory watch error", zap.Error(err))
			}
		}
	}()

	return events
}

// ScanOnce ingests every unseen lmstat file in the raw directory.
func (w *Worker) ScanOnce(parentCtx context.Context) (ScanResult, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	result := ScanResult{RunID: uuid.NewString()}

	entries, err := os.ReadDir(w.cfg.RawDir)
	if err != nil {
		return result, err
	}

	seen, err := w.repo.SourceFiles(ctx)
	if err != nil {
		return result, err
	}

	keep, err := w.userFilter(ctx)
	if err != nil {
		return result, err
	}

	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "lmstat_") || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		result.FilesSeen++
		if _, ok := seen[entry.Name()]; ok {
			continue
		}
		pending = append(pending, entry.Name())
	}
	sort.Strings(pending)

	log := w.log.With(zap.String("run_id", result.RunID))

	for _, name := range pending {
		inserted, skipped, err := w.ingestFile(ctx, name, keep)
		if err != nil {
			result.Failures++
			w.metrics.RecordParseFailure(ctx, "file")
			log.Warn("file ingest failed", zap.String("file", name), zap.Error(err))
			continue
		}
		result.FilesIngested++
		result.RecordsInserted += inserted
		result.LinesSkipped += skipped
	}

	if result.FilesIngested > 0 {
		w.metrics.RecordSnapshotsIngested(ctx, int64(result.RecordsInserted))
		w.cache.Bump(ctx)
		log.Info("ingest sweep complete",
			zap.Int("files_ingested", result.FilesIngested),
			zap.Int("records_inserted", result.RecordsInserted),
			zap.Int("failures", result.Failures),
		)
	}

	return result, nil
}

func (w *Worker) ingestFile(ctx context.Context, name string, keep KeepUser) (int, int, error) {
	f, err := os.Open(filepath.Join(w.cfg.RawDir, name))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	parsed, err := Parse(name, f, keep)
	if err != nil {
		return 0, 0, err
	}

	now := w.clock.Now()
	records := make([]domain.Record, 0, len(parsed.Checkouts))
	for _, co := range parsed.Checkouts {
		records = append(records, domain.Record{
			ID:         w.node.Generate(),
			Timestamp:  parsed.Timestamp,
			Feature:    co.Feature,
			User:       co.User,
			Host:       co.Host,
			SourceFile: name,
			CreatedAt:  now,
		})
	}

	if err := w.repo.Insert(ctx, records); err != nil {
		return 0, 0, err
	}
	return len(records), parsed.Skipped, nil
}

// userFilter prefers explicit policy membership over the partner
// naming convention.
func (w *Worker) userFilter(ctx context.Context) (KeepUser, error) {
	rules, err := w.policyRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return ConventionFilter(), nil
	}
	members := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		members[rule.User] = struct{}{}
	}
	return MemberFilter(members), nil
}
