package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/wirelog"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// submissions.
const maxRequestBody = 1 << 20

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	return protobufType(r.Header.Get("Content-Type"))
}

// acceptsProtobuf returns true if the client asked for a protobuf reply.
func acceptsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(part, ";")
		if protobufType(strings.TrimSpace(mt)) {
			return true
		}
	}
	return false
}

func protobufType(ct string) bool {
	return ct == wirelog.ContentType ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

// writeProto writes an encoded wire log with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", wirelog.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
