package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const thumbnailSuffix = "-thumbnail"

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// ArtifactName builds "<unix millis>-<random><ext>" for an upload. The random
// part makes concurrent uploads in the same millisecond distinct.
func ArtifactName(originalFilename string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), random, normalizedExt(originalFilename))
}

// ThumbnailName derives the thumbnail filename from the original's reference,
// "<stem>-thumbnail<ext>".
func ThumbnailName(originalRef, ext string) string {
	base := filepath.Base(filepath.FromSlash(originalRef))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + thumbnailSuffix + ext
}

// normalizedExt lower-cases the extension and drops anything unusual.
func normalizedExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !safeExt.MatchString(ext) {
		return ""
	}
	return ext
}
