package sink

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// Artifact describes an archived copy of a run's output.
type Artifact struct {
	Path   string
	URI    string
	Digest string
}

// ArchivePath names the archived copy: runs/YYYY/MM/DD/<run>-<digest>.<ext>.
func ArchivePath(runID, digest string, f Format, at time.Time) string {
	short := digest
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("runs/%s/%s-%s.%s", at.UTC().Format("2006/01/02"), runID, short, f)
}

// Archive stores data in the blob store under ArchivePath.
func Archive(ctx context.Context, store tender.BlobStore, hasher tender.Hasher, runID string, f Format, data []byte, at time.Time) (Artifact, error) {
	digest, err := hasher.Hash(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("hash artifact: %w", err)
	}
	p := ArchivePath(runID, digest, f, at)
	uri, err := store.PutObject(ctx, p, f.ContentType(), bytes.NewReader(data))
	if err != nil {
		return Artifact{}, fmt.Errorf("archive artifact: %w", err)
	}
	return Artifact{Path: p, URI: uri, Digest: digest}, nil
}
