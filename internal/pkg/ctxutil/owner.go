package ctxutil

import "context"

// ownerKeyType 使用私有类型避免与其他 context key 冲突
type ownerKeyType struct{}

var ownerKey = ownerKeyType{}

// Owner 请求者身份（用户 + 所属律所）
type Owner struct {
	UserID string
	FirmID string
}

// Valid 用户和律所都存在时才是有效身份
func (o Owner) Valid() bool {
	return o.UserID != "" && o.FirmID != ""
}

// WithOwner 将请求者身份注入到 context 中
// 说明：在认证中间件解析 JWT 成功后调用
func WithOwner(ctx context.Context, owner Owner) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerKey, owner)
}

// GetOwner 从 context 中解析请求者身份
func GetOwner(ctx context.Context) (Owner, bool) {
	if ctx == nil {
		return Owner{}, false
	}
	owner, ok := ctx.Value(ownerKey).(Owner)
	if !ok || !owner.Valid() {
		return Owner{}, false
	}
	return owner, true
}
