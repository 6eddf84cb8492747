package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a password against its hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ComputeSHA256 computes the SHA256 hash of data
func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// uploadZone is the timezone used to shard image paths by date (UTC+8,
// matching the public URL layout served by the site).
var uploadZone = time.FixedZone("UTC+8", 8*60*60)

// DatePath returns the YYYY/MM/DD path segment for t in the upload zone.
func DatePath(t time.Time) string {
	return t.In(uploadZone).Format("2006/01/02")
}

// ImagePath builds the full in-repo path for an uploaded file.
func ImagePath(t time.Time, filename string) string {
	return fmt.Sprintf("public/images/%s/%s", DatePath(t), filename)
}

// LinkFormats returns the public URL plus markdown/html/bbcode embeds for
// an image stored under the given date path.
func LinkFormats(siteURL string, t time.Time, filename string) (url, markdown, html, bbcode string) {
	url = fmt.Sprintf("%s/images/%s/%s", siteURL, DatePath(t), filename)
	markdown = fmt.Sprintf("![%s](%s)", filename, url)
	html = fmt.Sprintf(`<img src="%s" alt="%s">`, url, filename)
	bbcode = fmt.Sprintf("[img]%s[/img]", url)
	return
}
