package loader

import (
	"net/rpc"
	"strings"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/address"
	"github.com/pyropy/chunkloader/core/components"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/ledger"
	coreLoader "github.com/pyropy/chunkloader/core/loader"
	"github.com/pyropy/chunkloader/core/model"
)

// net/rpc only carries error strings, so known sentinels are recovered by
// their message.
var knownErrors = []error{
	coreLoader.ErrDuplicateIndex,
	coreLoader.ErrDataLengthMismatch,
	coreLoader.ErrOwnershipMismatch,
	coreLoader.ErrChunkTooLarge,
	model.ErrTypeMismatch,
	model.ErrTruncated,
	ledger.ErrInsufficientFunds,
	ledger.ErrMissingSignature,
	ledger.ErrAccountNotFound,
	ledger.ErrAccountInUse,
	ledger.ErrNotOwner,
	ledger.ErrRentNotExempt,
	ledger.ErrReallocTooLarge,
	address.ErrInvalidSeeds,
	address.ErrAddressMismatch,
	host.ErrUnknownComponent,
	host.ErrPrivilegeEscalation,
	host.ErrCallDepth,
	components.ErrInvalidUTF8,
	components.ErrMemoNotSigned,
	ErrUnauthenticated,
	ErrReplayed,
	ErrExpired,
	ErrFaucetDisabled,
	ErrFaucetLimit,
}

type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.cause
}

// FromServerError maps an rpc.ServerError back onto a known sentinel so
// callers can use errors.Is. Other errors pass through.
func FromServerError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}

	msg := string(serverErr)
	for _, known := range knownErrors {
		if strings.Contains(msg, known.Error()) {
			return &remoteError{msg: msg, cause: known}
		}
	}

	return err
}
