// Package indexer implements the Partition Indexer: the core state
// machine that streams one partition's models into a collection with
// resume and atomic progress.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/antflydb/vecindex/batch"
	"github.com/antflydb/vecindex/collection"
	"github.com/antflydb/vecindex/document"
	"github.com/antflydb/vecindex/resume"
	"github.com/antflydb/vecindex/schema"
	"github.com/antflydb/vecindex/tokenizer"
	"github.com/antflydb/vecindex/truncate"
	"github.com/antflydb/vecindex/vectorstore"
)

// ModelFile names one model's prepared source within a partition.
type ModelFile struct {
	Path          string
	Format        Format
	SchemaVersion int
}

// PartitionSpec is everything the indexer needs to process one partition.
type PartitionSpec struct {
	Name   string
	Models map[string]ModelFile
}

// Config configures an Indexer's behavior across partitions.
type Config struct {
	OutRoot         string
	Resume          bool
	APITokenLimit   int
	DefaultStrategy truncate.Strategy
	Batch           batch.Config

	// UpsertRatePerSec caps vector-store upsert calls per second across
	// every partition sharing this Indexer, smoothing the burst a wide
	// orchestrator pass would otherwise send the store. Zero or negative
	// disables the cap.
	UpsertRatePerSec float64
}

// Indexer runs the Partition Indexer state machine for one configuration
// against many partitions.
type Indexer struct {
	registry  *schema.Registry
	store     vectorstore.Client
	resolver  *collection.Resolver
	tok       tokenizer.Tokenizer
	truncator *truncate.Truncator
	limiter   *rate.Limiter
	logger    *zap.Logger
	cfg       Config
}

// New constructs an Indexer.
func New(registry *schema.Registry, store vectorstore.Client, resolver *collection.Resolver, logger *zap.Logger, cfg Config) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.UpsertRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.UpsertRatePerSec), 1)
	}
	tok := tokenizer.New()
	return &Indexer{
		registry:  registry,
		store:     store,
		resolver:  resolver,
		tok:       tok,
		truncator: truncate.New(tok),
		limiter:   limiter,
		logger:    logger,
		cfg:       cfg,
	}
}

// upsert applies the shared rate limiter, when one is configured, before
// every vector-store upsert call.
func (ix *Indexer) upsert(ctx context.Context, h vectorstore.Handle, ids, texts []string, metas []map[string]any) error {
	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return ix.store.Upsert(ctx, h, ids, texts, metas)
}

// flushCtx carries the per-model context handleFlush needs; kept separate
// from Indexer so concurrent partitions (Orchestrator) never share it.
type flushCtx struct {
	handle         vectorstore.Handle
	collectionName string
	partitionName  string
	modelName      string
	modelFile      ModelFile
	signature      resume.SourceSignature
	state          resume.State
	resumeStore    *resume.Store
	fieldnames     []string
}

// IndexPartition runs every model declared in partition through the
// Document Builder / Batch Aggregator / vector-store upsert pipeline,
// persisting a Resume Store checkpoint after every successful flush. It
// is fail-stop: the first irrecoverable error for any model in the
// partition stops the whole partition.
func (ix *Indexer) IndexPartition(ctx context.Context, partition PartitionSpec, baseCollection string) error {
	collectionName := ix.resolver.CollectionFor(partition.Name, baseCollection)
	handle, err := ix.store.GetOrCreateCollection(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("partition %s: getting collection %q: %w", partition.Name, collectionName, err)
	}

	resumeStore := resume.New(ix.cfg.OutRoot, partition.Name, collectionName)
	state, ok, err := resumeStore.Read()
	if err != nil {
		return fmt.Errorf("partition %s: reading resume state: %w", partition.Name, err)
	}
	if !ok {
		state = resume.State{}
	}

	for _, modelName := range ix.registry.Names() {
		modelFile, present := partition.Models[modelName]
		if !present {
			continue
		}
		spec, ok := ix.registry.Get(modelName)
		if !ok {
			continue
		}

		if err := ix.indexModel(ctx, partition.Name, collectionName, handle, spec, modelFile, state, resumeStore); err != nil {
			return fmt.Errorf("partition %s: model %s: %w", partition.Name, modelName, err)
		}
	}
	return nil
}

func (ix *Indexer) indexModel(
	ctx context.Context,
	partitionName, collectionName string,
	handle vectorstore.Handle,
	spec *schema.ModelSpec,
	modelFile ModelFile,
	state resume.State,
	resumeStore *resume.Store,
) error {
	sig, err := StatSignature(modelFile.Path)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	ms := state[spec.Name]
	signatureChanged := ms.SourceSignature != sig

	if ix.cfg.Resume && ms.Complete && !signatureChanged {
		ix.logger.Info("indexer: skipping completed model", zap.String("partition", partitionName), zap.String("model", spec.Name))
		return nil
	}

	var src *source
	rowIndex := 0
	switch {
	case ix.cfg.Resume && !signatureChanged && ms.FileOffset > 0:
		src, err = resumeAt(modelFile.Path, modelFile.Format, ms.FileOffset, ms.Fieldnames)
		rowIndex = ms.RowIndex
	case ix.cfg.Resume && !signatureChanged && ms.RowIndex > 0:
		// file_offset wasn't recorded byte-exact: reopen from the start
		// and skip the rows already accounted for.
		src, err = skipRows(modelFile.Path, modelFile.Format, ms.RowIndex)
		rowIndex = ms.RowIndex
	default:
		src, err = openSource(modelFile.Path, modelFile.Format)
		ms = resume.ModelState{} // changed source or fresh start: forget prior progress
	}
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	fc := &flushCtx{
		handle:         handle,
		collectionName: collectionName,
		partitionName:  partitionName,
		modelName:      spec.Name,
		modelFile:      modelFile,
		signature:      sig,
		state:          state,
		resumeStore:    resumeStore,
		fieldnames:     src.Fieldnames(),
	}

	agg := batch.New(ix.cfg.Batch)
	docBuilder := document.NewBuilder(spec, ix.tok, ix.truncator, document.Config{
		APITokenLimit:   ix.cfg.APITokenLimit,
		DefaultStrategy: ix.cfg.DefaultStrategy,
	})

	var pendingRows []int

	for {
		record, readErr := src.ReadRow()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading row %d: %w", rowIndex, readErr)
		}
		rowIndex++

		row, valErr := spec.Validator.Validate(record)
		if valErr != nil {
			ix.writeValidationFailure(fc, rowIndex, ms, valErr)
			return fmt.Errorf("row %d failed validation: %w", rowIndex, valErr)
		}

		doc, buildErr := docBuilder.Build(row, document.Context{
			PartitionName: partitionName,
			SchemaVersion: modelFile.SchemaVersion,
			SourcePath:    modelFile.Path,
		})
		if buildErr != nil {
			var skipped *document.SkippedWarning
			if errors.As(buildErr, &skipped) {
				ix.logger.Warn("indexer: skipping document over hard token limit",
					zap.String("partition", partitionName), zap.String("model", spec.Name),
					zap.String("id", skipped.ID), zap.Int("original_tokens", skipped.OriginalTokens))
				continue
			}
			return fmt.Errorf("building document for row %d: %w", rowIndex, buildErr)
		}

		rIdx := rowIndex
		flushes := agg.Add(doc)
		handledDoc := false
		for _, fl := range flushes {
			switch fl.Reason {
			case batch.ReasonThresholdReached:
				// The current row has been read but is not part of this
				// flush: checkpoint the offset where it begins so resume
				// replays it.
				rows := pendingRows
				pendingRows = nil
				if err := ix.handleFlush(ctx, fc, fl, rows, rIdx-1, src.PrevOffset(), &ms); err != nil {
					return err
				}
			case batch.ReasonSingleOverSafety:
				if err := ix.handleFlush(ctx, fc, fl, []int{rIdx}, rIdx, src.Offset(), &ms); err != nil {
					return err
				}
				handledDoc = true
			}
		}
		if !handledDoc {
			pendingRows = append(pendingRows, rIdx)
		}
	}

	if fl := agg.Flush(); fl != nil {
		if err := ix.handleFlush(ctx, fc, fl, pendingRows, rowIndex, src.Offset(), &ms); err != nil {
			return err
		}
		pendingRows = nil
	}

	ms.Complete = true
	ms.FileOffset = sig.Size
	ms.IndexedAt = time.Now().UTC().Format(time.RFC3339)
	state[spec.Name] = ms
	if err := resumeStore.Write(state); err != nil {
		return fmt.Errorf("persisting completion: %w", err)
	}
	return nil
}

// handleFlush upserts one batch, committing resume progress on success or
// writing an Error Report and propagating on failure.
func (ix *Indexer) handleFlush(ctx context.Context, fc *flushCtx, fl *batch.Flush, rowIndices []int, upToRowIndex int, offset int64, ms *resume.ModelState) error {
	ids := make([]string, len(fl.Docs))
	texts := make([]string, len(fl.Docs))
	metas := make([]map[string]any, len(fl.Docs))
	tokenCounts := make([]int, len(fl.Docs))
	tokenTotal := 0
	for i, d := range fl.Docs {
		ids[i] = d.ID
		texts[i] = d.Text
		metas[i] = d.Metadata
		tokenCounts[i] = d.TokenCount
		tokenTotal += d.TokenCount
	}

	err := ix.upsert(ctx, fc.handle, ids, texts, metas)
	if err != nil {
		var upsertErr *vectorstore.UpsertError
		if errors.As(err, &upsertErr) && upsertErr.Kind == vectorstore.ErrDuplicateID && len(upsertErr.DuplicateIDs) > 0 {
			// The only permitted local retry: drop the reported
			// duplicate ids and retry once.
			fIDs, fTexts, fMetas, fRows, fTokens := excludeIDs(ids, texts, metas, rowIndices, tokenCounts, upsertErr.DuplicateIDs)
			retryErr := ix.upsert(ctx, fc.handle, fIDs, fTexts, fMetas)
			if retryErr == nil {
				return ix.commitFlush(fc, fl.Reason, len(fIDs), sum(fTokens), fRows, upToRowIndex, offset, ms)
			}
			err = retryErr
		}
		path, reportErr := ix.writeFailureReport(fc, fl, rowIndices, tokenCounts, tokenTotal, upToRowIndex, err)
		if reportErr != nil {
			ix.logger.Error("indexer: failed to write error report", zap.Error(reportErr))
		} else {
			ix.logger.Error("indexer: flush failed", zap.String("partition", fc.partitionName),
				zap.String("model", fc.modelName), zap.String("error_report", path), zap.Error(err))
		}
		return fmt.Errorf("upsert failed: %w", err)
	}

	return ix.commitFlush(fc, fl.Reason, len(ids), tokenTotal, rowIndices, upToRowIndex, offset, ms)
}

func (ix *Indexer) commitFlush(fc *flushCtx, reason batch.FlushReason, batchSize, tokenTotal int, rowIndices []int, upToRowIndex int, offset int64, ms *resume.ModelState) error {
	ms.Started = true
	ms.RowIndex = upToRowIndex
	ms.FileOffset = offset
	// documents_indexed is this run's own cumulative count; collection_count
	// tracks the collection's believed total and may also be seeded from a
	// live store count by resume.Reconciler, so the two can diverge.
	ms.DocumentsIndexed += batchSize
	ms.CollectionCount += batchSize
	ms.SourceSignature = fc.signature
	ms.Fieldnames = fc.fieldnames
	ms.IndexedAt = time.Now().UTC().Format(time.RFC3339)
	fc.state[fc.modelName] = *ms

	if err := fc.resumeStore.Write(fc.state); err != nil {
		return fmt.Errorf("persisting resume state: %w", err)
	}

	ix.logger.Info("indexer: flushed batch",
		zap.String("partition", fc.partitionName), zap.String("model", fc.modelName),
		zap.String("reason", string(reason)), zap.Int("batch_size", batchSize),
		zap.Int("rows", len(rowIndices)), zap.Int("tokens", tokenTotal))
	return nil
}

func (ix *Indexer) writeFailureReport(fc *flushCtx, fl *batch.Flush, rowIndices, tokenCounts []int, tokenTotal, upToRowIndex int, flushErr error) (string, error) {
	ids := make([]string, len(fl.Docs))
	docs := make([]string, len(fl.Docs))
	metas := make([]map[string]any, len(fl.Docs))
	for i, d := range fl.Docs {
		ids[i] = d.ID
		docs[i] = truncateForReport(d.Text)
		metas[i] = d.Metadata
	}

	report := ErrorReport{
		ModelName:      fc.modelName,
		CollectionName: fc.collectionName,
		Reason:         "upsert_failed",
		SourceCSV:      fc.modelFile.Path,
		BatchSize:      len(fl.Docs),
		DocumentIDs:    ids,
		Documents:      docs,
		Metadatas:      metas,
		RowNumbers:     rowIndices,
		TokenCounts:    tokenCounts,
		TokenTotal:     tokenTotal,
		ResumeState:    resume.ModelState{RowIndex: upToRowIndex},
		ExceptionType:  fmt.Sprintf("%T", flushErr),
		ExceptionMsg:   flushErr.Error(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	return writeErrorReport(ix.cfg.OutRoot, fc.partitionName, report)
}

func (ix *Indexer) writeValidationFailure(fc *flushCtx, rowIndex int, ms resume.ModelState, valErr error) {
	report := ErrorReport{
		ModelName:     fc.modelName,
		Reason:        "validation",
		SourceCSV:     fc.modelFile.Path,
		RowNumbers:    []int{rowIndex},
		ResumeState:   resume.ModelState{RowIndex: ms.RowIndex},
		ExceptionType: fmt.Sprintf("%T", valErr),
		ExceptionMsg:  valErr.Error(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	path, err := writeErrorReport(ix.cfg.OutRoot, fc.partitionName, report)
	if err != nil {
		ix.logger.Error("indexer: failed to write validation error report", zap.Error(err))
		return
	}
	ix.logger.Error("indexer: row failed validation", zap.String("partition", fc.partitionName),
		zap.String("model", fc.modelName), zap.Int("row", rowIndex), zap.String("error_report", path), zap.Error(valErr))
}

func excludeIDs(ids, texts []string, metas []map[string]any, rows, tokens []int, exclude []string) ([]string, []string, []map[string]any, []int, []int) {
	drop := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		drop[id] = true
	}
	var fIDs, fTexts []string
	var fMetas []map[string]any
	var fRows, fTokens []int
	for i, id := range ids {
		if drop[id] {
			continue
		}
		fIDs = append(fIDs, id)
		fTexts = append(fTexts, texts[i])
		if i < len(metas) {
			fMetas = append(fMetas, metas[i])
		}
		if i < len(rows) {
			fRows = append(fRows, rows[i])
		}
		if i < len(tokens) {
			fTokens = append(fTokens, tokens[i])
		}
	}
	return fIDs, fTexts, fMetas, fRows, fTokens
}

func sum(xs []int) int {
	t := 0
	for _, x := range xs {
		t += x
	}
	return t
}
