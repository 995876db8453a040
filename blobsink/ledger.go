package blobsink

// blockLedger is the ordered, append-only record of staged block IDs. Its
// order determines the byte layout of the committed object.
type blockLedger struct {
	ids []string
}

func (l *blockLedger) append(blockID string) {
	l.ids = append(l.ids, blockID)
}

func (l *blockLedger) blockIDs() []string {
	ids := make([]string, len(l.ids))
	copy(ids, l.ids)
	return ids
}
