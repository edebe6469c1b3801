package services

import "strings"

// objectKeyFromURL extracts the object key from a virtual-hosted style URL,
// e.g. https://bucket.s3.us-east-2.amazonaws.com/users/u1/documents/d1/a.pdf.
func objectKeyFromURL(u string) string {
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	if i := strings.Index(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return ""
}
