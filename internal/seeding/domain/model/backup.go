package model

import (
	"strings"
	"time"
)

const (
	backupInfix       = "_backup_"
	backupStampLayout = "2006-01-02T15:04:05.000Z"
	backupStampLen    = len("2006-01-02T15-04-05-000Z")

	// BackupCatalogName is the collection recording every snapshot taken
	BackupCatalogName = "seeding_backups"
)

// BackupSnapshot records a point-in-time copy of a collection
type BackupSnapshot struct {
	Name          string    `json:"name" bson:"_id"`
	Source        string    `json:"source" bson:"source"`
	DocumentCount int64     `json:"documentCount" bson:"documentCount"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	RunID         string    `json:"runId,omitempty" bson:"runId,omitempty"`
}

// BackupName returns "<source>_backup_<timestamp>" with ':' and '.' replaced by '-'
func BackupName(source string, at time.Time) string {
	stamp := at.UTC().Format(backupStampLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return source + backupInfix + stamp
}

// ParseBackupName splits a generated backup name. ok is false for names
// that were not produced by BackupName.
func ParseBackupName(name string) (source string, at time.Time, ok bool) {
	i := strings.LastIndex(name, backupInfix)
	if i <= 0 {
		return "", time.Time{}, false
	}
	stamp := name[i+len(backupInfix):]
	if len(stamp) != backupStampLen {
		return "", time.Time{}, false
	}
	b := []byte(stamp)
	b[13], b[16], b[19] = ':', ':', '.'
	at, err := time.Parse(backupStampLayout, string(b))
	if err != nil {
		return "", time.Time{}, false
	}
	return name[:i], at, true
}

// IsBackupOf reports whether name is a generated backup of source
func IsBackupOf(name, source string) bool {
	s, _, ok := ParseBackupName(name)
	return ok && s == source
}

// BackupPrefix is the listing prefix for backups of source
func BackupPrefix(source string) string {
	return source + backupInfix
}
