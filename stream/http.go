package stream

import (
	"io"
	"net/http"
)

// Deprecated 代わりに copyBody を使用してください。
func readAllBody(body io.Reader, w http.ResponseWriter) {
	b, err := io.ReadAll(body)
	if err != nil {
		panic(err)
	}
	_, err = w.Write(b)
	if err != nil {
		return
	}
}

// copyBody 固定サイズバッファでのループ読み書きする。
func copyBody(body io.Reader, w http.ResponseWriter) {
	_, err := io.Copy(w, body)
	if err != nil {
		panic(err)
	}
}

// CopyBody streams body to w the same way copyBody does, but returns the
// error instead of panicking — the shape a long-running HTTP handler (the
// introspection debug dump) needs, since one bad response write should not
// take down the handler goroutine's caller.
func CopyBody(w http.ResponseWriter, body io.Reader) error {
	_, err := io.Copy(w, body)
	return err
}
