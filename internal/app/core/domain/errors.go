package domain

import "errors"

var (
	// ErrUnauthorized 缺少呼叫者身分
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden 呼叫者不是帳戶擁有者
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidRequest 請求參數不合法 (金額、帳號、長度等)
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSelfTransfer 轉出與轉入帳號相同
	ErrSelfTransfer = errors.New("cannot transfer to the same account")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrDestinationNotFound 找不到轉入帳戶
	ErrDestinationNotFound = errors.New("destination account not found")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateAccountNumber 帳號已存在 (由儲存層唯一索引回報)
	ErrDuplicateAccountNumber = errors.New("account number already exists")

	// ErrInfrastructure 儲存層或連線錯誤，整個工作單元已回滾
	ErrInfrastructure = errors.New("infrastructure failure")
)

// businessErrors 依 Reason 對應的業務錯誤，順序即比對順序
var businessErrors = []struct {
	err    error
	reason string
}{
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrSelfTransfer, "SELF_TRANSFER"},
	{ErrInvalidRequest, "INVALID_REQUEST"},
	{ErrDestinationNotFound, "DESTINATION_NOT_FOUND"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrDuplicateAccountNumber, "DUPLICATE_ACCOUNT_NUMBER"},
}

// IsBusinessError 判斷錯誤是否為授權、驗證、查無資料或業務規則錯誤
// 基礎設施錯誤一律回傳 false，即使它包住了業務錯誤
func IsBusinessError(err error) bool {
	if err == nil || errors.Is(err, ErrInfrastructure) {
		return false
	}
	for _, b := range businessErrors {
		if errors.Is(err, b.err) {
			return true
		}
	}
	return false
}

// Reason 回傳錯誤的穩定代碼，供傳輸層對應狀態碼使用
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInfrastructure) {
		return "INFRASTRUCTURE"
	}
	for _, b := range businessErrors {
		if errors.Is(err, b.err) {
			return b.reason
		}
	}
	return "INFRASTRUCTURE"
}
