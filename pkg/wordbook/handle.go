package wordbook

import (
	"context"
	"database/sql"
)

// Handle is a dedicated database connection for one client session. It is
// not safe for concurrent use; each session owns exactly one Handle.
type Handle struct {
	conn *sql.Conn
}

// Handle reserves a connection from the pool for exclusive use by the caller.
func (s *Store) Handle(ctx context.Context) (*Handle, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &Error{Op: "handle", Err: err}
	}
	return &Handle{conn: conn}, nil
}

// Search is Store.Search on the handle's connection.
func (h *Handle) Search(ctx context.Context, prefix string, limit int) ([]string, error) {
	return search(ctx, h.conn, prefix, limit)
}

// Close returns the connection to the pool.
func (h *Handle) Close() error {
	return h.conn.Close()
}
