package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store whose HTTP transport is an in-memory fake.
// Only the S3 operations the blob.Store interface needs are implemented.
func NewMockForTests() *Store {
	transport := &fakeTransport{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{
		client:     client,
		bucket:     "mock-bucket",
		presigner:  s3.NewPresignClient(client),
		presignTTL: defaultPresignTTL,
	}
}

type fakeObject struct {
	body        []byte
	contentType string
}

// fakeTransport serves Head/Get/Put/Delete/ListObjectsV2 from a map. Requests
// arrive path-style: /<bucket>/<key>.
type fakeTransport struct{ objects map[string]fakeObject }

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := objectKey(req.URL.Path)
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		return response(http.StatusOK, nil, http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"ETag":           {`"mock-etag"`},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}), nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		return response(http.StatusOK, obj.body, http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"ETag":           {`"mock-etag"`},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}), nil
	case http.MethodPut:
		raw, _ := io.ReadAll(req.Body)
		if decoded, ok := decodeAWSChunked(raw); ok {
			raw = decoded
		}
		if _, exists := f.objects[key]; !exists {
			f.objects[key] = fakeObject{body: raw, contentType: req.Header.Get("Content-Type")}
		}
		return response(http.StatusOK, nil, http.Header{"ETag": {`"mock-etag"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (f *fakeTransport) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func objectKey(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

// decodeAWSChunked unwraps a single-chunk aws-chunked payload of the form
// <hex size>\r\n<body>\r\n0\r\n...
func decodeAWSChunked(raw []byte) ([]byte, bool) {
	parts := strings.Split(string(raw), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}
