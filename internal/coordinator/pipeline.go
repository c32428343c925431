package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	cerrors "github.com/cerplabs/hybridsearch/internal/errors"
	"github.com/cerplabs/hybridsearch/internal/keywordindex"
	"github.com/cerplabs/hybridsearch/internal/metadata"
	"github.com/cerplabs/hybridsearch/internal/scanner"
	"github.com/cerplabs/hybridsearch/internal/source"
	"github.com/cerplabs/hybridsearch/internal/vectorindex"
	"github.com/cerplabs/hybridsearch/pkg/docid"
)

// runSourceKind indexes one source for one kind: it acquires the
// (source, kind) write lock, optionally clears that kind's prior
// state for a full rebuild, scans the source, skips unchanged files
// on incremental runs, and flushes batches to the backend.
func (c *Coordinator) runSourceKind(ctx context.Context, state *runState, src source.Source, kind Kind, mode Mode) error {
	lock := c.lockFor(src.ID, kind)
	locked, err := lock.TryLock()
	if err != nil {
		return cerrors.Wrap(cerrors.CodeInternal, err, "acquiring index write lock")
	}
	if !locked {
		return cerrors.New(cerrors.CodeWriteLockHeld, "another run is already indexing this source and kind", nil)
	}
	defer lock.Unlock()

	start := time.Now()
	logger := c.logger.With(slog.String("source", src.ID), slog.String("kind", string(kind)))

	if mode == ModeFullRebuild {
		if err := c.clearSourceKind(src.ID, kind); err != nil {
			return err
		}
	}

	results, err := c.scan.Scan(ctx, scanner.ScanOptions{
		RootDir:         src.Path,
		SourceRef:       src.ID,
		IncludePatterns: src.FilePatterns.Include,
		ExcludePatterns: src.FilePatterns.Exclude,
	})
	if err != nil {
		return cerrors.Wrap(cerrors.CodeInternal, err, "scanning source")
	}

	var keywordBatch []keywordindex.Document
	var vectorBatch []vectorindex.Chunk
	var metaBatch []metadata.FileMetadata
	var processed, skipped int
	var byteCount int64

	flush := func() error {
		if kind == KindKeyword && len(keywordBatch) > 0 {
			if err := cerrors.RetryOnce(ctx, retryBackoff, func() error {
				return c.keyword.Upsert(ctx, keywordBatch)
			}); err != nil {
				return cerrors.Wrap(cerrors.CodeInternal, err, "flushing keyword batch")
			}
			keywordBatch = keywordBatch[:0]
		}
		if kind == KindVector && len(vectorBatch) > 0 {
			if err := cerrors.RetryOnce(ctx, retryBackoff, func() error {
				return c.vector.Upsert(ctx, vectorBatch)
			}); err != nil {
				return cerrors.Wrap(cerrors.CodeInternal, err, "flushing vector batch")
			}
			vectorBatch = vectorBatch[:0]
		}
		if len(metaBatch) > 0 {
			if err := c.meta.UpsertBatch(metaBatch); err != nil {
				return cerrors.Wrap(cerrors.CodeInternal, err, "updating file metadata")
			}
			metaBatch = metaBatch[:0]
		}
		return nil
	}

scanLoop:
	for res := range results {
		select {
		case <-ctx.Done():
			break scanLoop
		default:
		}

		if res.Error != nil {
			logger.Warn("skipping file", slog.String("error", res.Error.Error()))
			skipped++
			continue
		}
		file := res.File

		existing, err := c.meta.GetLastIndexed(file.AbsPath)
		hasExisting := err == nil

		if mode == ModeIncremental && hasExisting && !changed(existing, file) && containsKind(existing.IndexedKinds, kind) {
			skipped++
			continue
		}

		id := docid.For(file.AbsPath)

		switch kind {
		case KindKeyword:
			keywordBatch = append(keywordBatch, buildKeywordDoc(id, src, file))
		case KindVector:
			vectorBatch = append(vectorBatch, vectorindex.Split(buildSourceDocument(id, src, file))...)
		}

		var priorKinds []string
		if hasExisting {
			priorKinds = existing.IndexedKinds
		}
		metaBatch = append(metaBatch, metadata.FileMetadata{
			Path:         file.AbsPath,
			SourceRef:    src.ID,
			ContentHash:  contentHash(file.Content),
			SizeBytes:    file.Size,
			ModTimeUnix:  file.ModTime.Unix(),
			IndexedKinds: mergeKind(priorKinds, kind),
		})

		processed++
		byteCount += file.Size

		if len(keywordBatch) >= keywordFlushSize || len(vectorBatch) >= vectorFlushSize {
			if err := flush(); err != nil {
				return err
			}
		}

		state.update(func(r *IndexRun) {
			r.FilesProcessed = processed
			r.FilesSkipped = skipped
		})
	}

	if err := flush(); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return cerrors.New(cerrors.CodeCancelled, "index run cancelled", ctx.Err())
	}

	if kind == KindKeyword {
		if err := c.keyword.AwaitQuiescence(ctx); err != nil {
			return cerrors.Wrap(cerrors.CodeInternal, err, "awaiting keyword quiescence")
		}
	}

	isInitial := mode == ModeFullRebuild
	if err := c.meta.RecordSourceIndexing(src.ID, string(kind), time.Since(start).Seconds(), processed, byteCount, isInitial); err != nil {
		return cerrors.Wrap(cerrors.CodeInternal, err, "recording source indexing stats")
	}

	state.update(func(r *IndexRun) {
		r.FilesProcessed = processed
		r.FilesSkipped = skipped
	})
	return nil
}

// clearSourceKind removes only kind's presence from a source's
// indexed state, leaving the other kind's metadata row intact. A row
// that would end up with no kinds left is removed entirely.
func (c *Coordinator) clearSourceKind(sourceID string, kind Kind) error {
	rows, err := c.meta.ListIndexed(sourceID)
	if err != nil {
		return cerrors.Wrap(cerrors.CodeInternal, err, "listing indexed files for rebuild")
	}

	var keep []metadata.FileMetadata
	for _, row := range rows {
		if !containsKind(row.IndexedKinds, kind) {
			continue
		}
		remaining := removeKind(row.IndexedKinds, kind)
		if len(remaining) == 0 {
			if err := c.meta.Remove(row.Path); err != nil {
				return cerrors.Wrap(cerrors.CodeInternal, err, "removing stale metadata row")
			}
			continue
		}
		row.IndexedKinds = remaining
		keep = append(keep, row)
	}
	if len(keep) > 0 {
		if err := c.meta.UpsertBatch(keep); err != nil {
			return cerrors.Wrap(cerrors.CodeInternal, err, "trimming metadata rows for rebuild")
		}
	}

	switch kind {
	case KindKeyword:
		for _, row := range rows {
			if containsKind(row.IndexedKinds, kind) {
				_ = c.keyword.Delete(docid.For(row.Path))
			}
		}
	case KindVector:
		for _, row := range rows {
			if containsKind(row.IndexedKinds, kind) {
				_ = c.vector.DeleteByFile(row.Path)
			}
		}
	}
	return nil
}

func changed(existing metadata.FileMetadata, file *scanner.ScannedFile) bool {
	return existing.ModTimeUnix != file.ModTime.Unix() || existing.SizeBytes != file.Size
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func buildKeywordDoc(id string, src source.Source, file *scanner.ScannedFile) keywordindex.Document {
	dir := path.Dir(file.RelPath)
	return keywordindex.Document{
		ID:            id,
		FilePath:      file.AbsPath,
		FileName:      filepath.Base(file.AbsPath),
		FolderName:    path.Base(dir),
		DirectoryPath: dir,
		RelativePath:  file.RelPath,
		Extension:     filepath.Ext(file.AbsPath),
		SourceType:    string(src.Kind),
		SourceID:      src.ID,
		Repository:    src.Name,
		Content:       file.Content,
		LastModified:  file.ModTime,
		Size:          file.Size,
	}
}

func buildSourceDocument(id string, src source.Source, file *scanner.ScannedFile) vectorindex.SourceDocument {
	return vectorindex.SourceDocument{
		DocID:        id,
		FilePath:     file.AbsPath,
		SourceType:   string(src.Kind),
		SourceID:     src.ID,
		Repository:   src.Name,
		FileType:     file.Language,
		RelativePath: file.RelPath,
		Content:      file.Content,
	}
}
