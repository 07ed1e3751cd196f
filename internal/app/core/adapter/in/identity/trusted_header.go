package identity

import (
	"context"
	"strings"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
)

// HeaderName 傳輸層攜帶 session handle 的 header / metadata key
const HeaderName = "X-Session"

// TrustedHeader 信任上游閘道已完成驗證，session handle 即為使用者 ID
//
// 若設定了 sessions 對照表，只接受表中存在的 handle，並回傳對應的使用者 ID。
type TrustedHeader struct {
	sessions map[string]string
}

func NewTrustedHeader(sessions map[string]string) *TrustedHeader {
	return &TrustedHeader{sessions: sessions}
}

func (t *TrustedHeader) ResolveUser(ctx context.Context, handle string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", domain.ErrUnauthorized
	}
	if len(t.sessions) == 0 {
		return handle, nil
	}
	userID, ok := t.sessions[handle]
	if !ok || userID == "" {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

var _ usecase.IdentityResolver = (*TrustedHeader)(nil)
