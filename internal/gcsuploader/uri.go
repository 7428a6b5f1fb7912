package gcsuploader

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ExportObjectName builds the object path an export is published under:
// <prefix>/<yyyy/mm/dd>/<runID>/<filename>.
func ExportObjectName(prefix, runID, filename string, now time.Time) string {
	return path.Join(prefix, now.Format("2006/01/02"), runID, filename)
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}
