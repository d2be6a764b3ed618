package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/matesrace/matesrace/internal/metrics"
)

const segmentsBucket = "segments"

type cachedSegment struct {
	Name     string    `json:"name"`
	CachedAt time.Time `json:"cachedAt"`
}

// SegmentCache keeps segment names in a BoltDB file so that races can be
// created and edited without asking Strava for names it already told us.
type SegmentCache struct {
	db *bbolt.DB
}

// OpenSegmentCache opens or creates the cache file at path.
func OpenSegmentCache(path string) (*SegmentCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open segment cache at %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(segmentsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &SegmentCache{db: db}, nil
}

func segmentKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

// Get returns the cached name of a segment.
func (c *SegmentCache) Get(id int64) (string, bool, error) {
	var entry cachedSegment
	var found bool

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(segmentsBucket)).Get(segmentKey(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read segment %d: %w", id, err)
	}
	return entry.Name, found, nil
}

func (c *SegmentCache) Put(id int64, name string) error {
	data, err := json.Marshal(cachedSegment{Name: name, CachedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(segmentsBucket)).Put(segmentKey(id), data)
	})
}

func (c *SegmentCache) Close() error {
	return c.db.Close()
}

// SegmentLookup fetches a segment from Strava. (*Client).GetSegment fits.
type SegmentLookup func(ctx context.Context, id int64) (*Segment, error)

// FallbackSegmentName is used when a segment's name cannot be resolved.
func FallbackSegmentName(id int64) string {
	return fmt.Sprintf("Segment %d", id)
}

// Names resolves segment names from the cache, falling back to lookup for
// misses. Looked-up names are cached; failures get FallbackSegmentName and are
// not cached so a later call can retry.
func (c *SegmentCache) Names(ctx context.Context, lookup SegmentLookup, ids []int64) map[int64]string {
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok, err := c.Get(id); err != nil {
			log.Printf("WARN: segment cache read failed for %d: %v", id, err)
		} else if ok {
			metrics.SegmentCacheLookups.WithLabelValues("hit").Inc()
			names[id] = name
			continue
		}
		metrics.SegmentCacheLookups.WithLabelValues("miss").Inc()

		seg, err := lookup(ctx, id)
		if err != nil || seg == nil || seg.Name == "" {
			if err != nil {
				log.Printf("WARN: could not fetch Strava segment %d: %v", id, err)
			}
			names[id] = FallbackSegmentName(id)
			continue
		}

		names[id] = seg.Name
		if err := c.Put(id, seg.Name); err != nil {
			log.Printf("WARN: could not cache segment %d: %v", id, err)
		}
	}
	return names
}
