package grpc

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

// ErrorDomain ErrorInfo.Domain 的值
const ErrorDomain = "ledger"

// internalMessage 基礎設施錯誤不對外透露細節
const internalMessage = "internal server error"

var codeByError = []struct {
	err  error
	code codes.Code
}{
	{domain.ErrUnauthorized, codes.Unauthenticated},
	{domain.ErrForbidden, codes.PermissionDenied},
	{domain.ErrSelfTransfer, codes.InvalidArgument},
	{domain.ErrInvalidRequest, codes.InvalidArgument},
	{domain.ErrDestinationNotFound, codes.NotFound},
	{domain.ErrAccountNotFound, codes.NotFound},
	{domain.ErrInsufficientBalance, codes.FailedPrecondition},
	{domain.ErrDuplicateAccountNumber, codes.AlreadyExists},
}

// toStatus 將 usecase 錯誤轉成 gRPC status，並附上 ErrorInfo
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code, msg := codes.Internal, internalMessage
	if domain.IsBusinessError(err) {
		for _, c := range codeByError {
			if errors.Is(err, c.err) {
				code, msg = c.code, err.Error()
				break
			}
		}
	}

	st := status.New(code, msg)
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: domain.Reason(err),
		Domain: ErrorDomain,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ReasonFromError 從 status 取出 ErrorInfo.Reason，沒有則回傳空字串
func ReasonFromError(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason()
		}
	}
	return ""
}
