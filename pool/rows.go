package pool

import (
	zterr "github.com/zteradb/zteradb-go/errors"
	"github.com/zteradb/zteradb-go/transport"
	"github.com/zteradb/zteradb-go/wire"
)

// Rows is the streamed result of one query: a lazy, finite, forward-only
// sequence of row objects. The borrowed transport stays loaned to the Rows
// until the stream ends; the release discipline is:
//
//   - terminator seen → transport back to idle
//   - any error        → transport destroyed
//   - Close before the terminator → transport destroyed (the protocol has
//     no in-band abort)
//
// Rows is not restartable: after the stream ends, Next keeps returning
// false.
type Rows struct {
	pool     *Pool
	t        *transport.Transport
	stream   *transport.Stream
	row      map[string]interface{}
	err      error
	finished bool
}

// Next advances to the next data frame. It returns false when the stream
// ends, cleanly or not; Err distinguishes the two.
func (r *Rows) Next() bool {
	if r.finished {
		return false
	}

	if !r.stream.Next() {
		r.finished = true
		if err := r.stream.Err(); err != nil {
			r.err = err
			r.pool.destroy(r.t)
		} else {
			r.pool.release(r.t)
		}
		return false
	}

	msg := r.stream.Message()
	if msg.ResponseCode != wire.ResponseQueryData {
		// The server aborted the stream with an error frame.
		r.finished = true
		r.err = zterr.Query(msg.DataString())
		r.pool.destroy(r.t)
		return false
	}

	r.row = msg.Row()
	return true
}

// Row returns the row read by the last successful Next.
func (r *Rows) Row() map[string]interface{} {
	return r.row
}

// Err returns the error that ended the stream, if any.
func (r *Rows) Err() error {
	return r.err
}

// Close abandons the stream. If the terminator has not been seen yet the
// transport is destroyed rather than returned to idle. Always safe to call;
// idempotent.
func (r *Rows) Close() error {
	if r.finished {
		return nil
	}
	r.finished = true
	r.pool.destroy(r.t)
	return nil
}

// Scan unmarshals the current row into dest, which must be a pointer to a
// struct or map. Field mapping follows encoding/json tags.
func (r *Rows) Scan(dest interface{}) error {
	if r.row == nil {
		return zterr.Value("no current row to scan")
	}
	raw, err := wire.EncodeJSON(r.row)
	if err != nil {
		return err
	}
	return wire.DecodeJSON(raw, dest)
}

// Collect drains the remaining rows into a slice, then closes the stream.
func (r *Rows) Collect() ([]map[string]interface{}, error) {
	defer r.Close()

	var rows []map[string]interface{}
	for r.Next() {
		rows = append(rows, r.Row())
	}
	return rows, r.Err()
}
