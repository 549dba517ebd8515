// Package components holds downstream components shipped with the service.
package components

import (
	"context"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/pyropy/chunkloader/lib/checksum"
	"github.com/pyropy/chunkloader/lib/logger"
)

var log, _ = logger.New("components")

var MemoProgram = model.MustParseAddress("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

var (
	ErrInvalidUTF8   = errors.New("memo is not valid utf-8")
	ErrMemoNotSigned = errors.New("memo account is not a signer")
)

// Memo accepts any UTF-8 payload and records it in the log. Every account
// passed to it must be a signer.
type Memo struct{}

var _ host.Component = Memo{}

func (Memo) Invoke(ctx context.Context, call *host.Call) error {
	signers := make([]string, 0, len(call.Accounts))
	for _, meta := range call.Accounts {
		if !meta.IsSigner {
			return errors.Wrapf(ErrMemoNotSigned, "%s", meta.Address)
		}
		signers = append(signers, meta.Address.String())
	}

	if !utf8.Valid(call.Data) {
		return ErrInvalidUTF8
	}

	log.Infow("memo", "len", len(call.Data), "digest", checksum.Digest(call.Data), "signers", signers)
	return nil
}

// RegisterDefaults installs the built-in components on rt.
func RegisterDefaults(rt *host.Runtime) error {
	return rt.Register(MemoProgram, Memo{})
}
