package engine

import (
	"breachline/engine/enginerr"
	"breachline/internal/annotation"
)

// LoadTags loads the active dataset's persisted labels and row
// annotations, per §6.
func (e *Engine) LoadTags() error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}
	if err := ds.annots.LoadTags(); err != nil {
		return enginerr.IOErrorf(err, "loading tags")
	}
	return nil
}

// TagRows applies req to every row in req.RowIDs, per §4.10/§6.
// TagModeReplace sets the row's label set to exactly req.LabelIDs;
// TagModeAppend/TagModeRemove add/remove req.LabelIDs from whatever
// the row already carries. A non-nil req.Note always replaces the
// row's note, independent of Mode.
func (e *Engine) TagRows(req TagRowsRequest) error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}

	switch req.Mode {
	case TagModeRemove:
		for _, labelID := range req.LabelIDs {
			ds.annots.ClearTag(req.RowIDs, labelID)
		}
	case TagModeReplace:
		for _, rowID := range req.RowIDs {
			for _, existing := range ds.annots.LabelIDs(rowID) {
				ds.annots.ClearTag([]uint32{rowID}, existing)
			}
		}
		fallthrough
	default: // TagModeAppend
		for _, labelID := range req.LabelIDs {
			if err := ds.annots.TagRows(req.RowIDs, labelID); err != nil {
				return enginerr.InvalidInputf("%v", err)
			}
		}
	}

	if req.Note != nil {
		for _, rowID := range req.RowIDs {
			ds.annots.SetNote(rowID, *req.Note)
		}
	}
	return nil
}

// ClearTag removes labelID from every row in rowIDs, per §4.10/§6.
func (e *Engine) ClearTag(rowIDs []uint32, labelID string) error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}
	ds.annots.ClearTag(rowIDs, labelID)
	return nil
}

// UpsertLabel creates or updates a label definition, per §4.10/§6.
func (e *Engine) UpsertLabel(label annotation.Label) (annotation.Label, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return annotation.Label{}, err
	}
	return ds.annots.UpsertLabel(label), nil
}

// DeleteLabel removes a label and cascades its removal from every
// row, per §4.10/§6.
func (e *Engine) DeleteLabel(labelID string) error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}
	ds.annots.DeleteLabel(labelID)
	return nil
}

// Labels returns the active dataset's label definitions.
func (e *Engine) Labels() ([]annotation.Label, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return nil, err
	}
	return ds.annots.Labels(), nil
}

// ExportTags returns a deep-copied snapshot of the active dataset's
// labels and row annotations, per §4.10/§6.
func (e *Engine) ExportTags() ([]annotation.Label, []annotation.RowAnnotation, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return nil, nil, err
	}
	labels, rows, err := ds.annots.ExportTags()
	if err != nil {
		return nil, nil, enginerr.IOErrorf(err, "exporting tags")
	}
	return labels, rows, nil
}

// ImportTags restores a previously exported label/row-annotation set,
// per §4.10/§6. MergeStrategy "merge" unions the incoming set with
// what's already present (incoming labels/notes win on id/rowId
// collision); any other value (including empty) replaces outright.
func (e *Engine) ImportTags(req ImportTagsRequest) error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}

	if req.MergeStrategy != "merge" {
		ds.annots.ImportTags(req.Labels, req.Rows)
		return nil
	}

	existingLabels, existingRows, err := ds.annots.ExportTags()
	if err != nil {
		return enginerr.IOErrorf(err, "reading existing tags for merge")
	}

	labelByID := make(map[string]annotation.Label, len(existingLabels)+len(req.Labels))
	for _, l := range existingLabels {
		labelByID[l.ID] = l
	}
	for _, l := range req.Labels {
		labelByID[l.ID] = l
	}
	mergedLabels := make([]annotation.Label, 0, len(labelByID))
	for _, l := range labelByID {
		mergedLabels = append(mergedLabels, l)
	}

	rowByID := make(map[uint32]annotation.RowAnnotation, len(existingRows)+len(req.Rows))
	for _, r := range existingRows {
		rowByID[r.RowID] = r
	}
	for _, incoming := range req.Rows {
		merged, ok := rowByID[incoming.RowID]
		if !ok {
			rowByID[incoming.RowID] = incoming
			continue
		}
		merged.Note = incoming.Note
		merged.LabelIDs = unionStrings(merged.LabelIDs, incoming.LabelIDs)
		rowByID[incoming.RowID] = merged
	}
	mergedRows := make([]annotation.RowAnnotation, 0, len(rowByID))
	for _, r := range rowByID {
		mergedRows = append(mergedRows, r)
	}

	ds.annots.ImportTags(mergedLabels, mergedRows)
	return nil
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// PersistTags forces an immediate (non-debounced) save of the active
// dataset's tags, per §6.
func (e *Engine) PersistTags() error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}
	if err := ds.annots.PersistTags(); err != nil {
		return enginerr.IOErrorf(err, "persisting tags")
	}
	return nil
}
