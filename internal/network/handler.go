package network

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"

	"github.com/google/uuid"

	"catalogd/internal/images"
	"catalogd/internal/logger"
	"catalogd/internal/search"
	"catalogd/internal/session"
	"catalogd/internal/storage"
	"catalogd/internal/transaction"
	"catalogd/internal/types"
	"catalogd/internal/wire"
)

// connHandler owns one client connection and its session. It is not shared
// between goroutines.
type connHandler struct {
	ctx    context.Context
	srv    *Server
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	sess   *session.Session
	auth   *session.Authenticator
	engine *search.Engine
	log    *logger.Entry
}

func newConnHandler(ctx context.Context, srv *Server, conn net.Conn) *connHandler {
	sess := session.New()
	return &connHandler{
		ctx:    ctx,
		srv:    srv,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, 64<<10),
		w:      bufio.NewWriterSize(conn, 64<<10),
		sess:   sess,
		auth:   session.NewAuthenticator(srv.worker, sess),
		engine: search.NewEngine(srv.worker),
		log: logger.WithFields(logger.Fields{
			"conn":   uuid.NewString(),
			"remote": conn.RemoteAddr().String(),
		}),
	}
}

func (h *connHandler) serve() {
	defer func() {
		h.w.Flush()
		h.conn.Close()
	}()
	h.log.Debug("Client connected")

	for {
		if !h.srv.armDeadline(h.conn) {
			return
		}
		frame, err := wire.ReadFrame(h.r, h.srv.opts.MaxFrameBytes)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				h.log.Debug("Client disconnected")
			case errors.Is(err, wire.ErrFrameTooLarge):
				// The oversized body is never read, so the stream cannot be resynchronised.
				h.log.Warn("Closing connection: %v", err)
				h.reply(wire.NewMessage(wire.MsgInvalidRequest))
			case errors.Is(err, os.ErrDeadlineExceeded):
				h.log.Debug("Closing idle connection")
			default:
				h.log.Debug("Read error: %v", err)
			}
			return
		}

		if !h.dispatch(frame) {
			return
		}
		if err := h.w.Flush(); err != nil {
			h.log.Debug("Write error: %v", err)
			return
		}
	}
}

// dispatch runs one control frame. It returns false when the connection
// must be closed.
func (h *connHandler) dispatch(frame []byte) bool {
	cmd, decodeErr := wire.Decode(frame)

	if rcv, ok := cmd.(wire.ReceiveImage); ok {
		return h.receiveImage(rcv, decodeErr)
	}
	if cmd != nil && cmd.AdminOnly() && !h.sess.IsAdmin() {
		return h.reply(wire.NewMessage(wire.MsgUnauthorized))
	}
	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, wire.ErrUnknownCommand):
			return h.reply(wire.NewMessage(wire.MsgInvalidCommand))
		case errors.Is(decodeErr, wire.ErrInvalidTable):
			return h.reply(wire.NewMessage(wire.MsgInvalidTable))
		}
		h.log.Debug("Rejected frame: %v", decodeErr)
		return h.reply(wire.NewMessage(wire.MsgInvalidRequest))
	}

	switch c := cmd.(type) {
	case wire.Authenticate:
		ok, err := h.auth.Authenticate(h.ctx, c.Username, c.Password)
		if err != nil {
			return h.replyError(err)
		}
		if !ok {
			h.log.Info("Authentication failed for %q", c.Username)
			return h.reply(wire.NewMessage(wire.MsgAuthFailed))
		}
		h.log.WithField("user", c.Username).Info("Authenticated (%s)", h.sess.State())
		return h.reply(wire.NewMessage(wire.MsgAuthOK))

	case wire.Disconnect:
		h.sess.Reset()
		return h.reply(wire.NewMessage(wire.MsgDisconnected))

	case wire.Get:
		return h.get(c.Req)

	case wire.Search:
		items, err := h.engine.Search(h.ctx, c.Query)
		if err != nil {
			return h.replyError(err)
		}
		return h.reply(items)

	case wire.Set:
		if item, ok := c.Req.(types.SetItemRequest); ok && item.Item.ImagePath != nil {
			if _, err := images.CleanPath(*item.Item.ImagePath); err != nil {
				return h.reply(wire.NewMessage(wire.MsgInvalidRequest))
			}
		}
		data, err := h.srv.worker.Submit(h.ctx, c.Req)
		if err != nil {
			return h.replyError(err)
		}
		id, _ := data.(int64)
		return h.reply(wire.Created(c.Table, id))

	case wire.Delete:
		if _, err := h.srv.worker.Submit(h.ctx, c.Req); err != nil {
			return h.replyError(err)
		}
		return h.reply(wire.Deleted(c.Req.Table))

	case wire.AttachImage:
		if _, err := images.CleanPath(c.Req.ImagePath); err != nil {
			return h.reply(wire.NewMessage(wire.MsgInvalidRequest))
		}
		if _, err := h.srv.worker.Submit(h.ctx, c.Req); err != nil {
			return h.replyError(err)
		}
		return h.reply(wire.NewMessage(wire.MsgImageAttached))

	case wire.Snapshot:
		data, err := h.srv.worker.Submit(h.ctx, c.Req)
		if err != nil {
			return h.replyError(err)
		}
		info := data.(types.SnapshotInfo)
		h.log.Info("Snapshot written to %s (%d bytes)", info.Path, info.Size)
		return h.reply(wire.SnapshotCreated{Message: wire.MsgSnapshotCreated, Path: info.Path, Size: info.Size})
	}
	return h.reply(wire.NewMessage(wire.MsgInvalidCommand))
}

func (h *connHandler) get(req types.GetRequest) bool {
	data, err := h.srv.worker.Submit(h.ctx, req)
	if err != nil {
		return h.replyError(err)
	}
	switch d := data.(type) {
	case *types.Item:
		return h.sendItem(*d)
	case *types.Lookup:
		if req.ID == nil && req.Name != nil {
			return h.reply(wire.LookupName{Name: d.Name})
		}
		return h.reply(d)
	}
	return h.reply(data)
}

// sendItem writes an item and, when it references a readable image, the
// image bytes as the following frame.
func (h *connHandler) sendItem(item types.Item) bool {
	if item.ImagePath == nil {
		return h.reply(item)
	}
	img, err := h.srv.images.Open(*item.ImagePath)
	if err != nil {
		if !errors.Is(err, images.ErrNotFound) {
			h.log.Warn("Image %q for item %d unavailable: %v", *item.ImagePath, item.ID, err)
		}
		item.ImagePath = nil
		return h.reply(wire.ItemMissingImage{Item: item, Message: wire.MsgImageNotFound})
	}
	defer img.Close()

	if !h.reply(wire.ItemWithImage{Item: item, ImageWeight: img.Size, ImageHash: img.Digest}) {
		return false
	}
	if err := wire.WriteHeader(h.w, uint32(img.Size)); err != nil {
		return false
	}
	if _, err := io.CopyN(h.w, img.File, img.Size); err != nil {
		// The header already promised img.Size bytes.
		h.log.Error("Streaming image %q: %v", *item.ImagePath, err)
		return false
	}
	return true
}

// receiveImage stores the payload frame that follows an upload announcement.
// The payload is consumed whether or not the upload is accepted.
func (h *connHandler) receiveImage(cmd wire.ReceiveImage, decodeErr error) bool {
	if !h.srv.armDeadline(h.conn) {
		return false
	}
	n, err := wire.ReadHeader(h.r)
	if err != nil {
		return false
	}
	if limit := h.srv.opts.MaxImageBytes; limit > 0 && n > limit {
		h.log.Warn("Closing connection: image frame of %d bytes exceeds %d", n, limit)
		h.reply(wire.NewMessage(wire.MsgInvalidRequest))
		return false
	}
	payload := &io.LimitedReader{R: h.r, N: int64(n)}
	defer func() {
		if payload.N > 0 {
			io.Copy(io.Discard, payload)
		}
	}()

	switch {
	case !h.sess.IsAdmin():
		return h.discardThen(payload, wire.NewMessage(wire.MsgUnauthorized))
	case decodeErr != nil:
		return h.discardThen(payload, wire.NewMessage(wire.MsgInvalidRequest))
	case int64(n) != cmd.Weight:
		return h.discardThen(payload, wire.NewMessage(wire.MsgImageSize))
	}

	digest, err := h.srv.images.Put(cmd.Path, payload, int64(n))
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return false
		}
		h.log.Warn("Rejected image upload %q: %v", cmd.Path, err)
		if errors.Is(err, images.ErrInvalidPath) || errors.Is(err, images.ErrTooLarge) {
			return h.discardThen(payload, wire.NewMessage(wire.MsgInvalidRequest))
		}
		return h.discardThen(payload, wire.NewMessage(wire.MsgInternal))
	}
	h.log.Info("Stored image %q (%d bytes)", cmd.Path, n)
	return h.reply(wire.ImageReceived{Message: wire.MsgImageReceived, ImagePath: cmd.Path, ImageHash: digest})
}

func (h *connHandler) discardThen(payload *io.LimitedReader, resp interface{}) bool {
	if _, err := io.Copy(io.Discard, payload); err != nil || payload.N > 0 {
		return false
	}
	return h.reply(resp)
}

func (h *connHandler) reply(v interface{}) bool {
	if err := wire.WriteJSON(h.w, v); err != nil {
		h.log.Debug("Write error: %v", err)
		return false
	}
	return true
}

// replyError turns a worker or storage failure into a status message.
func (h *connHandler) replyError(err error) bool {
	return h.reply(wire.NewMessage(h.errorMessage(err)))
}

func (h *connHandler) errorMessage(err error) string {
	var (
		notFound  *storage.NotFoundError
		exists    *storage.ExistsError
		integrity *storage.IntegrityError
	)
	switch {
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &exists):
		return exists.Error()
	case errors.As(err, &integrity):
		return integrity.Error()
	case errors.Is(err, transaction.ErrInvalidArgument):
		return wire.MsgInvalidRequest
	case errors.Is(err, transaction.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return wire.MsgUnavailable
	}
	h.log.Error("Request failed: %v", err)
	return wire.MsgInternal
}
