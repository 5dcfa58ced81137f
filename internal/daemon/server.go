package daemon

import (
	"context"
	"io"
	"net"

	"github.com/codelatch/codelatch/internal/protocol"
)

// handleClient serves one hook connection: read a frame, dispatch,
// and for blocking permission requests write the decision frame back.
// A malformed frame drops the connection; the hook client treats the
// closed channel as a deny.
func (d *Daemon) handleClient(ctx context.Context, conn net.Conn) error {
	defer conn.Close() //nolint:errcheck
	for {
		envelope, err := protocol.ReadHookEnvelope(conn)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if envelope.IsBlockingPermission() {
			response, err := d.processPermissionRequest(ctx, envelope)
			if err != nil {
				return err
			}
			if err := protocol.WriteEnvelope(conn, response); err != nil {
				return err
			}
			continue
		}

		if err := d.processAsyncEvent(ctx, envelope); err != nil {
			return err
		}
	}
}
