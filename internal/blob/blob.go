package blob

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const apiVersion = "2021-08-06"

// Uploader PUTs local files into a blob container through a signed
// container-level URL. A single attempt per file; failures are
// classified into user-meaningful reasons.
type Uploader struct {
	baseURL *url.URL
	client  *http.Client
}

func NewUploader(sasURL string, timeout time.Duration) (*Uploader, error) {
	u, err := url.Parse(sasURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob container URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, errors.New("blob container URL must be http(s)")
	}
	if u.RawQuery == "" {
		return nil, errors.New("blob container URL is missing its signature query")
	}
	return &Uploader{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// ObjectName builds a deterministic, collision-resistant object name:
// "<prefix>/<UTC timestamp, colons stripped><extension>". Files with
// no extension get ".bin".
func ObjectName(prefix, filePath string) string {
	return objectNameAt(prefix, filePath, time.Now().UTC())
}

func objectNameAt(prefix, filePath string, t time.Time) string {
	ext := filepath.Ext(filePath)
	if ext == "" {
		ext = ".bin"
	}
	return prefix + "/" + t.Format("2006-01-02T150405.000Z") + ext
}

// ParseObjectName splits an object name back into its logical prefix
// and file extension.
func ParseObjectName(name string) (prefix, ext string, ok bool) {
	i := strings.LastIndexByte(name, '/')
	if i <= 0 {
		return "", "", false
	}
	base := name[i+1:]
	if base == "" {
		return "", "", false
	}
	return name[:i], path.Ext(base), true
}

// BuildObjectURL joins the container's signed URL with an object name,
// percent-encoding each path segment and carrying the signature query
// through verbatim.
func BuildObjectURL(base *url.URL, objectName string) string {
	u := *base
	segments := strings.Split(objectName, "/")
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		escaped = append(escaped, url.PathEscape(seg))
	}
	joined := strings.TrimRight(u.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.RawPath = joined
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(segments, "/")
	if u.Path == joined {
		u.RawPath = ""
	}
	return u.String()
}

// UploadError is a classified upload failure. Reason is safe to show a
// user.
type UploadError struct {
	Status int
	Reason string
	Detail string
}

func (e *UploadError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return e.Reason
}

type storageError struct {
	XMLName xml.Name `xml:"Error"`
	Message string   `xml:"Message"`
}

// Upload streams the file as a block blob. Returns the final object
// URL (signature query included) on success.
func (u *Uploader) Upload(ctx context.Context, localPath, objectName string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		contentType = mt.String()
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	objectURL := BuildObjectURL(u.baseURL, objectName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, f)
	if err != nil {
		return "", err
	}
	req.ContentLength = info.Size()
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("x-ms-version", apiVersion)
	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", classifyNetError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		return objectURL, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var se storageError
	xml.Unmarshal(body, &se)

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return "", &UploadError{Status: resp.StatusCode, Reason: "Upload link expired or not authorized"}
	case http.StatusNotFound:
		return "", &UploadError{Status: resp.StatusCode, Reason: "Storage container not found"}
	case http.StatusConflict:
		return "", &UploadError{Status: resp.StatusCode, Reason: "Storage conflict, try again in a moment"}
	case http.StatusRequestEntityTooLarge:
		return "", &UploadError{Status: resp.StatusCode, Reason: "File is too large for the storage upload"}
	default:
		return "", &UploadError{
			Status: resp.StatusCode,
			Reason: fmt.Sprintf("Storage upload failed (HTTP %d)", resp.StatusCode),
			Detail: se.Message,
		}
	}
}

func classifyNetError(err error) error {
	msg := strings.ToLower(err.Error())

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") {
		return &UploadError{Reason: "Couldn't resolve the storage host"}
	}
	if strings.Contains(msg, "connection refused") {
		return &UploadError{Reason: "Storage host refused the connection"}
	}
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return &UploadError{Reason: "Storage upload timed out"}
	}
	if strings.Contains(msg, "connection reset") {
		return &UploadError{Reason: "Connection to storage was reset"}
	}
	return &UploadError{Reason: "Storage upload failed", Detail: err.Error()}
}
