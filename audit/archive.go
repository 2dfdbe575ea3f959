package audit

import (
	"context"
	"encoding/json"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// ArchiveRepository stores DiffArtifacts in CouchDB using path-based
// document IDs, `{tenant}/{base_hash}..{new_hash}`, so a range query over
// a tenant's prefix lists every diff it has ever submitted for audit.
type ArchiveRepository struct {
	db *kivik.DB
}

// NewArchiveRepository connects to CouchDB at url and ensures database
// exists.
func NewArchiveRepository(ctx context.Context, url, database string) (*ArchiveRepository, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "connect couchdb", err)
	}

	db := client.DB(database)
	if err := db.Err(); err != nil {
		if err := client.CreateDB(ctx, database); err != nil {
			return nil, apierr.Wrap(apierr.KindTransient, "create audit archive database", err)
		}
		db = client.DB(database)
	}

	return &ArchiveRepository{db: db}, nil
}

// DiffArtifact is the archived record of one diff submitted for audit,
// paired with the violation report it ultimately produced.
type DiffArtifact struct {
	TenantID     string `json:"tenant_id"`
	Fingerprint  string `json:"fingerprint"`
	BaseHash     string `json:"base_hash"`
	NewHash      string `json:"new_hash"`
	Raw          string `json:"raw_diff"`
	ReportResult string `json:"report_result,omitempty"`
}

func docID(tenantID, baseHash, newHash string) string {
	return fmt.Sprintf("%s/%s..%s", tenantID, baseHash, newHash)
}

// Save archives artifact, upserting if a document already exists at its
// computed ID (e.g. when the pipeline revisits the same diff after a
// crash-resume).
func (r *ArchiveRepository) Save(ctx context.Context, artifact DiffArtifact) error {
	id := docID(artifact.TenantID, artifact.BaseHash, artifact.NewHash)

	var existing map[string]interface{}
	rev := ""
	row := r.db.Get(ctx, id)
	if row.Err() == nil {
		if err := row.ScanDoc(&existing); err == nil {
			if r, ok := existing["_rev"].(string); ok {
				rev = r
			}
		}
	}

	doc := map[string]interface{}{
		"tenant_id":     artifact.TenantID,
		"fingerprint":   artifact.Fingerprint,
		"base_hash":     artifact.BaseHash,
		"new_hash":      artifact.NewHash,
		"raw_diff":      artifact.Raw,
		"report_result": artifact.ReportResult,
	}
	if rev != "" {
		doc["_rev"] = rev
	}

	if _, err := r.db.Put(ctx, id, doc); err != nil {
		return apierr.Wrap(apierr.KindTransient, "archive diff artifact", err)
	}
	return nil
}

// Get fetches a previously archived DiffArtifact by its tenant and hash
// pair.
func (r *ArchiveRepository) Get(ctx context.Context, tenantID, baseHash, newHash string) (*DiffArtifact, error) {
	id := docID(tenantID, baseHash, newHash)

	row := r.db.Get(ctx, id)
	if row.Err() != nil {
		return nil, apierr.Wrap(apierr.KindValidation, "diff artifact not found", apierr.ErrNotFound)
	}

	var raw json.RawMessage
	if err := row.ScanDoc(&raw); err != nil {
		return nil, apierr.Internal(err)
	}

	var artifact DiffArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, apierr.Internal(err)
	}
	return &artifact, nil
}
