package program

import "fmt"

// ProgramError 是处理器返回的错误。Name 使用账本原生错误名，
// 远端账本返回的失败可以通过 ProgramErrorFromName 映射回同一组哨兵错误。
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// Is 按 Code 比较，使 fmt.Errorf("%w") 包装后的错误仍可用 errors.Is 判断
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	return ok && t.Code == e.Code
}

var (
	ErrIncorrectOwner       = &ProgramError{Code: 1, Name: "IncorrectProgramId", Msg: "account is not owned by this program"}
	ErrMissingSignature     = &ProgramError{Code: 2, Name: "MissingRequiredSignature", Msg: "required co-signer absent"}
	ErrSizeMismatch         = &ProgramError{Code: 3, Name: "InvalidAccountData", Msg: "payload length does not match allocated length"}
	ErrMalformedInstruction = &ProgramError{Code: 4, Name: "InvalidInstructionData", Msg: "malformed instruction"}
	ErrNotEnoughAccountKeys = &ProgramError{Code: 5, Name: "NotEnoughAccountKeys", Msg: "not enough account keys"}
)

var programErrors = []*ProgramError{
	ErrIncorrectOwner,
	ErrMissingSignature,
	ErrSizeMismatch,
	ErrMalformedInstruction,
	ErrNotEnoughAccountKeys,
}

// ProgramErrorFromName 根据账本原生错误名查找对应的哨兵错误
func ProgramErrorFromName(name string) (*ProgramError, bool) {
	for _, e := range programErrors {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}
