package storage

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/clickweave/clickweave/models"
)

var (
	profilesBucket      = []byte("profiles")
	executionLogsBucket = []byte("execution_logs")
	stateBucket         = []byte("state")

	lastProfileKey = []byte("last_profile_id")
)

var ErrNotFound = errors.New("not found")

type BoltDB struct {
	db *bolt.DB
}

func NewBoltDB(dbPath string) (*BoltDB, error) {
	dir := filepath.Dir(dbPath)

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s (directory: %s)", dbPath, dir)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{profilesBucket, executionLogsBucket, stateBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create buckets")
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Path returns the database file path.
func (b *BoltDB) Path() string {
	return b.db.Path()
}

// ============= Profiles =============

func (b *BoltDB) SaveProfile(profile *models.Profile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return errors.Wrapf(err, "encode profile %s", profile.ID)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(profilesBucket).Put([]byte(profile.ID), data)
	})
}

// UpdateProfile overwrites an existing profile and stamps UpdatedAt. It
// returns ErrNotFound when no profile has that id.
func (b *BoltDB) UpdateProfile(profile *models.Profile) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		if bucket.Get([]byte(profile.ID)) == nil {
			return errors.Wrapf(ErrNotFound, "profile %s", profile.ID)
		}
		profile.UpdatedAt = time.Now()
		data, err := json.Marshal(profile)
		if err != nil {
			return errors.Wrapf(err, "encode profile %s", profile.ID)
		}
		return bucket.Put([]byte(profile.ID), data)
	})
}

func (b *BoltDB) GetProfile(id string) (*models.Profile, error) {
	var profile models.Profile
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(profilesBucket).Get([]byte(id))
		if data == nil {
			return errors.Wrapf(ErrNotFound, "profile %s", id)
		}
		return json.Unmarshal(data, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfiles returns all profiles sorted by name.
func (b *BoltDB) ListProfiles() ([]*models.Profile, error) {
	var profiles []*models.Profile
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(profilesBucket).ForEach(func(k, v []byte) error {
			var profile models.Profile
			if err := json.Unmarshal(v, &profile); err != nil {
				return errors.Wrapf(err, "decode profile %s", k)
			}
			profiles = append(profiles, &profile)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Name != profiles[j].Name {
			return profiles[i].Name < profiles[j].Name
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

func (b *BoltDB) DeleteProfile(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		if bucket.Get([]byte(id)) == nil {
			return errors.Wrapf(ErrNotFound, "profile %s", id)
		}
		return bucket.Delete([]byte(id))
	})
}

// ============= Execution logs =============

// SaveExecutionLog stores a finalized log. Logs are keyed by start time so
// the bucket iterates oldest first.
func (b *BoltDB) SaveExecutionLog(log *models.ExecutionLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return errors.Wrapf(err, "encode execution log %s", log.ID)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(executionLogsBucket).Put(logKey(log), data)
	})
}

func logKey(log *models.ExecutionLog) []byte {
	return []byte(log.StartTime.UTC().Format("20060102T150405.000000000Z") + "_" + log.ID)
}

// ListExecutionLogs returns logs newest first, optionally filtered by
// profile. A limit <= 0 returns all of them.
func (b *BoltDB) ListExecutionLogs(profileID string, limit int) ([]*models.ExecutionLog, error) {
	var logs []*models.ExecutionLog
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(executionLogsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var log models.ExecutionLog
			if err := json.Unmarshal(v, &log); err != nil {
				return errors.Wrapf(err, "decode execution log %s", k)
			}
			if profileID != "" && log.ProfileID != profileID {
				continue
			}
			logs = append(logs, &log)
			if limit > 0 && len(logs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// PruneExecutionLogs keeps the newest max logs and deletes the rest. It
// returns how many were removed.
func (b *BoltDB) PruneExecutionLogs(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(executionLogsBucket)
		excess := bucket.Stats().KeyN - max
		if excess <= 0 {
			return nil
		}
		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && len(keys) < excess; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	return removed, err
}

// ClearExecutionLogs deletes every log.
func (b *BoltDB) ClearExecutionLogs() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(executionLogsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(executionLogsBucket)
		return err
	})
}

// ============= State =============

func (b *BoltDB) SetLastProfileID(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(lastProfileKey, []byte(id))
	})
}

func (b *BoltDB) LastProfileID() (string, error) {
	var id string
	err := b.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket(stateBucket).Get(lastProfileKey))
		return nil
	})
	return id, err
}
