package chronicle

import (
	"encoding/base64"
	"fmt"

	"github.com/automerge/automerge-go"
)

// Save returns the full causal history of the document.
func (c *Chronicle) Save() []byte {
	raw := c.doc.Save()
	c.metrics.ObserveSnapshot(len(raw))
	return raw
}

// Load replaces the document with the one encoded in data. Local history is discarded and
// the loaded document gets a fresh actor id. Sync sessions held by callers stay valid and
// are reconciled against the new heads on their next use.
func (c *Chronicle) Load(data []byte) error {
	doc, err := automerge.Load(data)
	c.metrics.ObserveLoad(err)
	if err != nil {
		return documentError("load", fmt.Errorf("failed to load document: %w", err))
	}
	c.doc = doc
	c.logger.Debug("loaded document", "bytes", len(data), "heads", len(doc.Heads()))
	return nil
}

// Merge unions the history encoded in data with the local one. Both histories are kept and
// conflicting values are resolved by the document engine.
func (c *Chronicle) Merge(data []byte) error {
	err := c.merge(data)
	c.metrics.ObserveMerge(err)
	return err
}

func (c *Chronicle) merge(data []byte) error {
	other, err := automerge.Load(data)
	if err != nil {
		return documentError("merge", fmt.Errorf("failed to load other document: %w", err))
	}
	if _, err := c.doc.Merge(other); err != nil {
		return documentError("merge", fmt.Errorf("failed to merge documents: %w", err))
	}
	c.logger.Debug("merged document", "bytes", len(data), "heads", len(c.doc.Heads()))
	return nil
}

// SyncFull merges a whole document, for peers that do not speak the sync protocol.
func (c *Chronicle) SyncFull(data []byte) error {
	return c.Merge(data)
}

func (c *Chronicle) SaveBase64() string {
	return EncodeBase64(c.Save())
}

func (c *Chronicle) LoadBase64(encoded string) error {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return serializationError("load", fmt.Errorf("invalid base64: %w", err))
	}
	return c.Load(data)
}

// EncodeBase64 uses the standard alphabet and pads the output to a multiple of 4.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 accepts only padded standard base64. Padding may appear only in the final
// group; anything after it is rejected.
func DecodeBase64(encoded string) ([]byte, error) {
	if len(encoded)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(encoded))
	}
	return base64.StdEncoding.DecodeString(encoded)
}
