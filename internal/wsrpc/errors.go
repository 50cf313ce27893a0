package wsrpc

import (
	apperrors "github.com/cc-executor/cc-executor/internal/common/errors"
	"github.com/cc-executor/cc-executor/pkg/jsonrpc"
)

// rpcError maps an internal error to the JSON-RPC error object the spec's error
// taxonomy (§7) defines, falling back to the generic internal-error code for anything
// that isn't an AppError.
func rpcError(err error) *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    apperrors.GetRPCCode(err),
		Message: apperrors.GetMessage(err),
	}
}
