/*-------------------------------------------------------------------------
 *
 * exoquery - Column Index Persistence
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package colindex

import (
	"fmt"

	"exoquery/internal/catalog"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
	"exoquery/internal/snapshot"
)

// Persist writes the catalog, vectors and build metadata to path as one
// snapshot file.
func (ix *Index) Persist(path string) error {
	s := &snapshot.Snapshot{
		Meta: snapshot.Meta{
			SchemaSource:    ix.schemaSource,
			TextForm:        ix.textForm,
			Dimensions:      ix.dims,
			EncoderProvider: ix.encoder.ProviderName(),
			EncoderModel:    ix.encoder.ModelName(),
		},
		Records: ix.catalog.Records(),
		Vectors: ix.vectors,
	}
	if err := snapshot.Write(path, s); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

// Restore loads an index from a snapshot. The encoder must be the model
// the snapshot was built with; it is used for search text only.
// Inconsistent snapshots fail with CorruptIndex.
func Restore(path string, enc Encoder, opts Options) (*Index, error) {
	if enc == nil {
		return nil, qerrors.IndexUnavailable("no encoder configured", nil)
	}

	s, err := snapshot.Read(path)
	if err != nil {
		return nil, err
	}

	if s.Meta.EncoderModel != "" && s.Meta.EncoderModel != enc.ModelName() {
		return nil, qerrors.IndexUnavailable(fmt.Sprintf(
			"snapshot %s was built with model %q but the configured encoder is %q",
			path, s.Meta.EncoderModel, enc.ModelName()), nil)
	}

	cat, err := catalog.New(s.Records)
	if err != nil {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("snapshot %s: %v", path, err))
	}
	if len(s.Vectors) != cat.Len() || cat.Len() == 0 {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("snapshot %s holds %d vectors for %d columns", path, len(s.Vectors), cat.Len()))
	}
	dims, err := checkDimensions(cat, s.Vectors)
	if err != nil || dims != s.Meta.Dimensions {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("snapshot %s has inconsistent vector dimensions", path))
	}

	form := s.Meta.TextForm
	if form == "" {
		form = catalog.TextName
	}

	logging.Info("index_restored", "path", path, "columns", cat.Len(), "dimensions", dims)

	return &Index{
		catalog:      cat,
		vectors:      s.Vectors,
		dims:         dims,
		textForm:     form,
		schemaSource: s.Meta.SchemaSource,
		instruments:  opts.Instruments,
		encoder:      enc,
	}, nil
}
